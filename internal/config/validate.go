package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports missing identifiers that no operation can proceed without.
func Validate(cfg Config) error {
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("config %s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}
	if cfg.Resolution.Enabled {
		if strings.TrimSpace(cfg.Ledger.MarketStateID) == "" {
			errs = append(errs, errors.New("config ledger.market_state_id: required when resolution is enabled"))
		}
		if strings.TrimSpace(cfg.Ledger.PrivateKey) == "" {
			errs = append(errs, errors.New("config ledger.private_key: required when resolution is enabled"))
		}
		if cfg.Resolution.NautilusEnabled {
			for name, val := range map[string]string{
				"ledger.registry_id":          cfg.Ledger.RegistryID,
				"ledger.nautilus_registry_id": cfg.Ledger.NautilusRegistryID,
				"ledger.suilend_state_id":     cfg.Ledger.SuilendStateID,
				"ledger.haedal_state_id":      cfg.Ledger.HaedalStateID,
				"ledger.volo_state_id":        cfg.Ledger.VoloStateID,
			} {
				if strings.TrimSpace(val) == "" {
					errs = append(errs, fmt.Errorf("config %s: required when nautilus is enabled", name))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}
