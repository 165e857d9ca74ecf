package config

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"sparkify/pkg/errors"
)

// keyringPrefix marks a DB_PASSWORD value that names an OS keyring entry
// instead of holding the password itself: keyring:<service>/<account>.
const keyringPrefix = "keyring:"

// lookupSecret is swapped in tests.
var lookupSecret = keyring.Get

func resolveSecret(value string) (string, error) {
	if !strings.HasPrefix(value, keyringPrefix) {
		return value, nil
	}

	ref := strings.TrimPrefix(value, keyringPrefix)
	service, account, ok := strings.Cut(ref, "/")
	if !ok || service == "" || account == "" {
		return "", errors.ConfigInvalidError(SectionCluster, "DB_PASSWORD",
			fmt.Sprintf("keyring reference %q must look like keyring:<service>/<account>", ref))
	}

	secret, err := lookupSecret(service, account)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSecretLookup, "Failed to read DB_PASSWORD from the OS keyring").
			WithContext("service", service).
			WithContext("account", account).
			WithSuggestions(fmt.Sprintf("Store the password with: keyring set %s %s", service, account))
	}
	return secret, nil
}
