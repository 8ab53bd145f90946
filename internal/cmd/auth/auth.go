// ABOUTME: Authentication command for managing the stored Sigstore identity token
// ABOUTME: Handles login, status, and logout for the local keyless signing flow
package auth

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/scanseal/scanseal/internal/auth"
	"github.com/scanseal/scanseal/internal/cmd"
)

func NewAuthCommand(ctx *cmd.CommandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored Sigstore identity token",
		Long: `Manage the Sigstore identity token used for local keyless signing.

Inside CI the identity token is acquired from the platform automatically
and nothing needs to be stored. Outside CI a static token can be stored
here; without one, signing falls back to the interactive browser flow.`,
	}

	authCmd.AddCommand(newLoginCommand(ctx))
	authCmd.AddCommand(newStatusCommand(ctx))
	authCmd.AddCommand(newLogoutCommand(ctx))

	return authCmd
}

func newLoginCommand(ctx *cmd.CommandContext) *cobra.Command {
	var issuer string

	loginCmd := &cobra.Command{
		Use:   "login [IDENTITY_TOKEN]",
		Short: "Store a Sigstore identity token for local signing",
		Long: `Store a pre-acquired OIDC identity token for local keyless signing.
The token is kept in the OS keychain when available, with a
permission-restricted file fallback.`,
		Args: cobra.ExactArgs(1),
		Run: func(cobraCmd *cobra.Command, args []string) {
			if err := auth.StoreToken(args[0], issuer); err != nil {
				ctx.Logger.Error("Failed to store identity token", ctx.Logger.Args("error", err))
				return
			}
			pterm.Success.Println("Identity token stored")
			pterm.Info.Println("The token will be used for local keyless signing")
		},
	}

	loginCmd.Flags().StringVar(&issuer, "issuer", "", "OIDC issuer the token was obtained from")

	return loginCmd
}

func newStatusCommand(ctx *cmd.CommandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "View identity token status",
		Long:  `Display whether an identity token is stored and where it came from.`,
		Run: func(cobraCmd *cobra.Command, args []string) {
			environment := auth.DetectSigningEnvironment()

			cred, err := auth.GetStoredCredential()
			if err != nil || cred.Token == "" {
				pterm.Warning.Println("No identity token stored")
				pterm.Info.Printfln("Signing environment: %s", string(environment))
				pterm.Info.Println("Run 'scanseal auth login' to store one for local signing")
				return
			}

			ctx.Logger.Info("Identity token status",
				ctx.Logger.Args(
					"status", "stored",
					"token", maskToken(cred.Token),
					"issuer", cred.Issuer,
					"storage", cred.Source,
					"environment", string(environment),
					"created", cred.CreatedAt.Format("2006-01-02 15:04:05"),
				),
			)
		},
	}
}

func newLogoutCommand(ctx *cmd.CommandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored identity token",
		Long:  `Remove the stored identity token from the keychain and file storage.`,
		Run: func(cobraCmd *cobra.Command, args []string) {
			if err := auth.ClearStoredToken(); err != nil {
				ctx.Logger.Error("Failed to clear identity token", ctx.Logger.Args("error", err))
				return
			}
			pterm.Success.Println("Identity token removed")
		},
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
