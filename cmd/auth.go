package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/podsession/internal/formatter"
	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin signs in and persists the credential for later commands.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")
	password := cmd.String("password")
	if password == "" {
		return fmt.Errorf("%w: --password or PODSESSION_PASSWORD is required", shared.ErrMissingArgument)
	}

	sess, err := r.connect(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("signing in", "email", email)
	if err := sess.Login(ctx, email, password); err != nil {
		return err
	}

	snap := sess.Snapshot()
	r.writePlain("✓ Signed in as %s\n", snap.User.DisplayName())
	if snap.ExpiresAt != nil {
		r.writePlain("Token expires %s\n", snap.ExpiresAt.Local().Format(time.DateTime))
	}
	return nil
}

// AuthRegister creates an account and reports where the one-time code was sent.
func (r *Runner) AuthRegister(ctx context.Context, cmd *cli.Command) error {
	channel, err := models.ParseOTPChannel(cmd.String("channel"))
	if err != nil {
		return err
	}

	password := cmd.String("password")
	confirm := cmd.String("confirm-password")
	if confirm == "" {
		confirm = password
	}

	reg := models.Registration{
		Email:           cmd.String("email"),
		Password:        password,
		ConfirmPassword: confirm,
		FullName:        cmd.String("name"),
		PhoneNumber:     cmd.String("phone"),
		OTPSentChannel:  channel,
	}

	sess, err := r.connect(ctx)
	if err != nil {
		return err
	}

	result, err := sess.Register(ctx, reg)
	if err != nil {
		return err
	}

	r.writePlain("✓ Registered. A code was sent via %s to %s\n", result.Channel, result.Contact)
	if result.Message != "" {
		r.writePlain("%s\n", result.Message)
	}
	r.writePlainln("Next steps:")
	r.writePlain("podsession auth verify --contact %s --channel %s --code <code>\n", result.Contact, result.Channel)
	return nil
}

// AuthVerify confirms a one-time code. It does not sign in.
func (r *Runner) AuthVerify(ctx context.Context, cmd *cli.Command) error {
	channel, err := models.ParseOTPChannel(cmd.String("channel"))
	if err != nil {
		return err
	}
	otpType, err := models.ParseOTPType(cmd.String("type"))
	if err != nil {
		return err
	}

	sess, err := r.connect(ctx)
	if err != nil {
		return err
	}

	err = sess.VerifyOTP(ctx, models.OTPVerification{
		Contact:        cmd.String("contact"),
		OTPCode:        cmd.String("code"),
		OTPSentChannel: channel,
		OTPType:        otpType,
	})
	if err != nil {
		return err
	}

	return r.writePlain("✓ Code verified. Run 'podsession auth login' to sign in\n")
}

// AuthLogout ends the session. The local credential is removed even when the backend is unreachable.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.connect(ctx)
	if err != nil {
		return err
	}

	if !sess.IsAuthenticated() {
		return r.writePlain("Not signed in\n")
	}

	if err := sess.Logout(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Signed out\n")
}

// AuthRefresh exchanges the stored token for a new one.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.connect(ctx)
	if err != nil {
		return err
	}

	if err := sess.RefreshToken(ctx); err != nil {
		return err
	}

	snap := sess.Snapshot()
	if snap.ExpiresAt == nil {
		return r.writePlain("✓ Token refreshed\n")
	}
	return r.writePlain("✓ Token refreshed, expires %s\n", snap.ExpiresAt.Local().Format(time.DateTime))
}

// AuthStatus prints the session snapshot after restoring it from storage.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	sess, err := r.connect(ctx)
	if err != nil {
		return err
	}

	return formatter.WriteStatus(r.output, format, sess.Snapshot())
}

// AuthWhoami fetches the profile from the backend rather than printing the cached copy.
func (r *Runner) AuthWhoami(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	sess, err := r.connect(ctx)
	if err != nil {
		return err
	}

	profile, err := sess.FetchProfile(ctx)
	if err != nil {
		return err
	}
	return formatter.WriteProfile(r.output, format, profile)
}

// AuthHistory lists recorded session events, newest first.
func (r *Runner) AuthHistory(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	if _, err := r.connect(ctx); err != nil {
		return err
	}

	events, err := r.events.List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		path, err := formatter.WriteEventsExport(events, format, output)
		if err != nil {
			return err
		}
		r.logger.Info("history exported", "path", path, "events", len(events))
		return r.writePlain("✓ Wrote %d events to %s\n", len(events), path)
	}

	return formatter.WriteEvents(r.output, format, events)
}
