// internal/auth/credentials.go
package auth

import (
	"errors"
	"fmt"
	"os/user"

	"github.com/charmbracelet/log"
	"github.com/msteinert/pam"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/config"
)

const pamService = "login"

// ValidateCredentials checks the Linux user exists, validates the password
// with PAM and requires membership in the configured admin group.
// Invalid credentials return false with a nil error.
func ValidateCredentials(username, password string) (bool, error) {
	if _, err := lookupUser(username); err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			log.Infof("Login attempt failed: User '%s' not found", username)
			return false, nil
		}
		return false, fmt.Errorf("system error checking user existence: %w", err)
	}

	t, err := pam.StartFunc(pamService, username, func(s pam.Style, text string) (string, error) {
		switch s {
		case pam.PromptEchoOff, pam.PromptEchoOn:
			return password, nil
		case pam.ErrorMsg, pam.TextInfo:
			log.Debugf("PAM message for user '%s': %s", username, text)
			return "", nil
		}
		return "", fmt.Errorf("unhandled PAM style: %v", s)
	})
	if err != nil {
		return false, fmt.Errorf("failed to start PAM transaction: %w", err)
	}

	if err := t.Authenticate(0); err != nil {
		log.Infof("Login attempt failed for user '%s': PAM authentication failed: %v", username, err)
		return false, nil
	}
	if err := t.AcctMgmt(0); err != nil {
		log.Infof("Login attempt denied for user '%s': account check failed: %v", username, err)
		return false, nil
	}

	group := config.AppConfig.AdminGroup
	ok, err := IsUserInGroup(username, group)
	if err != nil {
		return false, fmt.Errorf("error checking group membership: %w", err)
	}
	if !ok {
		log.Infof("Login attempt denied for user '%s': not a member of group '%s'", username, group)
		return false, nil
	}

	log.Infof("Authentication successful for user '%s'", username)
	return true, nil
}
