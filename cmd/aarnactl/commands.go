package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Zorrojurro/project-aarna/internal/app"
	"github.com/Zorrojurro/project-aarna/internal/export"
	"github.com/Zorrojurro/project-aarna/internal/registry"
	"github.com/Zorrojurro/project-aarna/internal/session"
)

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func newDeployCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a new registry with the current identity as admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				appID, err := a.Registry.Deploy(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]uint64{"app_id": appID})
			})
		},
	}
}

func newValidatorCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validator <address>",
		Short: "Set the validator address (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Registry.ConfigureValidator(ctx, args[0])
			})
		},
	}
}

func newAdminCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "admin <address>",
		Short: "Transfer registry administration (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Registry.TransferAdmin(ctx, args[0])
			})
		},
	}
}

func newTokenCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Create the credit token if it does not exist yet (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				assetID, err := a.Registry.MintToken(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]uint64{"asset_id": assetID})
			})
		},
	}
}

func newOptInCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "optin",
		Short: "Opt the current identity in to the credit token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Registry.OptInToAsset(ctx)
			})
		},
	}
}

func newSubmitCommand(flags *globalFlags) *cobra.Command {
	var in registry.ProjectInput
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a restoration project for verification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := a.Registry.SubmitProject(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]uint64{"id": id})
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "project name")
	cmd.Flags().StringVar(&in.Location, "location", "", "project location")
	cmd.Flags().StringVar(&in.EcosystemType, "ecosystem", "", "ecosystem type, e.g. Mangrove")
	cmd.Flags().StringVar(&in.EvidenceReference, "evidence", "", "content identifier of the evidence document")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newApproveCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <project-id> <credits>",
		Short: "Approve a pending project with a credit amount (validator only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			credits, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid credits %q", args[1])
			}
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Registry.ApproveProject(ctx, id, credits)
			})
		},
	}
}

func newRejectCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <project-id>",
		Short: "Reject a pending project (validator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Registry.RejectProject(ctx, id)
			})
		},
	}
}

func newIssueCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <project-id>",
		Short: "Issue the approved credits of a verified project (validator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				issued, err := a.Registry.IssueCredits(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]uint64{"id": id, "issued": issued})
			})
		},
	}
}

func newListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <amount> <price-per-unit>",
		Short: "List credits for sale",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			price, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid price %q", args[1])
			}
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := a.Registry.ListForSale(ctx, amount, price)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]uint64{"id": id})
			})
		},
	}
}

func newBuyCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <listing-id>",
		Short: "Buy an active listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Registry.BuyListing(ctx, id)
			})
		},
	}
}

func newCancelCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <listing-id>",
		Short: "Cancel one of your active listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Registry.CancelListing(ctx, id)
			})
		},
	}
}

func newStateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the registry as seen by the current identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Registry.Snapshot())
			})
		},
	}
}

func newExportCommand(flags *globalFlags) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export projects and listings as csv, xlsx or pdf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withApp(cmd, func(ctx context.Context, a *app.App) error {
				tables := export.RegistryTables(a.Registry.Snapshot())
				if out == "" || out == "-" {
					return export.Write(cmd.OutOrStdout(), format, tables)
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := export.Write(f, format, tables); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", export.FormatCSV, "csv, xlsx or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	return cmd
}

func newKeygenCommand() *cobra.Command {
	var out, passphrase string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create an encrypted keystore with a fresh identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, err := session.GenerateKeySigner()
			if err != nil {
				return err
			}
			if err := session.SaveKeystore(out, signer, passphrase); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"address": signer.Address(), "keystore": out})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "keystore.json", "keystore path")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "keystore passphrase")
	_ = cmd.MarkFlagRequired("passphrase")
	return cmd
}

func newAddressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "address <label>",
		Short: "Print the address of a demo identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), session.DemoSigner(args[0]).Address())
			return err
		},
	}
}
