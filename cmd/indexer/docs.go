package main

//go:generate swag init -g cmd/indexer/main.go -o docs

// @title           Prophyt Indexer API
// @version         0.1.0
// @description     Indexed prediction markets, bets, charts and oracle resolution controls.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
