package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/pflag"

	"github.com/nhle/labconsole/internal/credential"
	"github.com/nhle/labconsole/internal/model"
)

func runLogin(args []string) error {
	flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
	token := flags.String("token", "", "API token")
	username := flags.String("username", "", "username of the token owner")
	email := flags.String("email", "", "email of the token owner")
	userID := flags.String("user-id", "", "backend id of the token owner")
	if err := flags.Parse(args); err != nil {
		return err
	}

	sess := model.Session{
		Token: strings.TrimSpace(*token),
		Profile: model.UserProfile{
			ID:       strings.TrimSpace(*userID),
			Username: strings.TrimSpace(*username),
			Email:    strings.TrimSpace(*email),
		},
	}

	if !sess.Valid() {
		if err := loginForm(&sess).Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return fmt.Errorf("login form: %w", err)
		}
	}

	ring, err := credential.Open()
	if err != nil {
		return err
	}
	if err := ring.Save(sess); err != nil {
		return err
	}

	fmt.Printf("Signed in as %s.\n", sess.Profile.Username)
	return nil
}

// loginForm asks for the session artifacts, pre-filled from sess.
func loginForm(sess *model.Session) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API token").
				EchoMode(huh.EchoModePassword).
				Value(&sess.Token).
				Validate(required("token")),
			huh.NewInput().
				Title("Username").
				Value(&sess.Profile.Username).
				Validate(required("username")),
			huh.NewInput().
				Title("Email").
				Value(&sess.Profile.Email),
			huh.NewInput().
				Title("User ID").
				Value(&sess.Profile.ID),
		),
	)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func runLogout() error {
	ring, err := credential.Open()
	if err != nil {
		return err
	}
	if _, err := ring.Session(context.Background()); errors.Is(err, model.ErrNoSession) {
		fmt.Println("Not signed in.")
		return nil
	}
	if err := ring.Clear(); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}
