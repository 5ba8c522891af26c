package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance (teacher's pattern).
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateServer validates struct tags plus the custom rules tags can't
// express (spec §3 Library invariants: "id is globally unique"; §4.4
// "every root exists and is a directory at startup" is checked later by
// library.NewManager, which needs the resolved filesystem, not just the
// document).
func ValidateServer(cfg *ServerConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateServerRules(cfg)
}

// ValidateClient validates a ClientTransferConfig.
func ValidateClient(cfg *ClientTransferConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func validateServerRules(cfg *ServerConfig) error {
	if len(cfg.Libraries) == 0 {
		return fmt.Errorf("libraries: at least one library must be configured")
	}

	ids := make(map[string]bool, len(cfg.Libraries))
	for i, lib := range cfg.Libraries {
		if ids[lib.ID] {
			return fmt.Errorf("libraries[%d]: duplicate library id %q", i, lib.ID)
		}
		ids[lib.ID] = true

		if lib.Backend == "s3" && (lib.S3 == nil || lib.S3.Bucket == "") {
			return fmt.Errorf("libraries[%d]: backend \"s3\" requires s3.bucket", i)
		}
	}

	clientIDs := make(map[string]bool, len(cfg.Clients))
	for i, c := range cfg.Clients {
		if clientIDs[c.ID] {
			return fmt.Errorf("clients[%d]: duplicate client id %q", i, c.ID)
		}
		clientIDs[c.ID] = true
	}

	// Every authorized client id referenced by a library must name a
	// configured client record; a typo here would otherwise silently lock
	// every client out of that library at handshake time.
	for i, lib := range cfg.Libraries {
		for _, authorizedID := range lib.AuthorizedClients {
			if !clientIDs[authorizedID] {
				return fmt.Errorf("libraries[%d]: authorized client %q is not a configured client", i, authorizedID)
			}
		}
	}

	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
