package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/equipment-registry/api"
	"github.com/ruteri/equipment-registry/api/clients"
	"github.com/ruteri/equipment-registry/cmd/flags"
	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/urfave/cli/v2"
)

var flagID = &cli.StringFlag{
	Name:     "id",
	Required: true,
	Usage:    "equipment id",
}

var flagAddress = &cli.StringFlag{
	Name:     "address",
	Required: true,
	Usage:    "40-char hex address",
}

func main() {
	app := &cli.App{
		Name:  "registry-client",
		Usage: "Query and update the equipment registry",
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flags.ResolverFlag,
			flags.KeyFlag,
		},
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "generate a signing key and print it with its address",
				Action: func(cCtx *cli.Context) error {
					key, err := crypto.GenerateKey()
					if err != nil {
						return err
					}
					return printJSON(map[string]string{
						"key":     hexutil.Encode(crypto.FromECDSA(key)),
						"address": crypto.PubkeyToAddress(key.PublicKey).Hex(),
					})
				},
			},
			equipmentCommand,
			governanceCommand,
			providerCommand,
			{
				Name:  "nonce",
				Usage: "print the nonce the next signed request of an address must use",
				Flags: []cli.Flag{flagAddress},
				Action: withAddress(func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error) {
					nonce, err := c.Nonce(cCtx.Context, addr)
					return api.NonceResponse{Nonce: nonce}, err
				}),
			},
			{
				Name:  "height",
				Usage: "print the current clock height",
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
					h, err := c.Height(cCtx.Context)
					return api.HeightResponse{Height: h}, err
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var equipmentCommand = &cli.Command{
	Name:  "equipment",
	Usage: "equipment asset registry",
	Subcommands: []*cli.Command{
		{
			Name:  "register",
			Usage: "register equipment owned by the caller",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name"},
				&cli.StringFlag{Name: "manufacturer"},
				&cli.StringFlag{Name: "model"},
				&cli.StringFlag{Name: "serial-number"},
				&cli.Uint64Flag{Name: "manufacture-date"},
			},
			Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
				id, err := c.RegisterEquipment(cCtx.Context, api.RegisterEquipmentRequest{
					Name:            cCtx.String("name"),
					Manufacturer:    cCtx.String("manufacturer"),
					Model:           cCtx.String("model"),
					SerialNumber:    cCtx.String("serial-number"),
					ManufactureDate: cCtx.Uint64("manufacture-date"),
				})
				return api.EquipmentIDResponse{ID: id}, err
			}),
		},
		{
			Name:  "transfer",
			Usage: "transfer equipment to another owner",
			Flags: []cli.Flag{flagID, &cli.StringFlag{Name: "to", Required: true}},
			Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
				id, err := interfaces.ParseEquipmentID(cCtx.String("id"))
				if err != nil {
					return nil, err
				}
				to, err := interfaces.NewIdentityFromHex(cCtx.String("to"))
				if err != nil {
					return nil, err
				}
				return api.OwnerResponse{Owner: to}, c.TransferEquipment(cCtx.Context, id, to)
			}),
		},
		{
			Name:  "maintenance",
			Usage: "set the last maintenance date",
			Flags: []cli.Flag{flagID, &cli.Uint64Flag{Name: "date", Required: true}},
			Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
				id, err := interfaces.ParseEquipmentID(cCtx.String("id"))
				if err != nil {
					return nil, err
				}
				return nil, c.UpdateLastMaintenanceDate(cCtx.Context, id, cCtx.Uint64("date"))
			}),
		},
		{
			Name:  "get",
			Usage: "print equipment details",
			Flags: []cli.Flag{flagID},
			Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
				id, err := interfaces.ParseEquipmentID(cCtx.String("id"))
				if err != nil {
					return nil, err
				}
				return c.GetEquipmentDetails(cCtx.Context, id)
			}),
		},
		{
			Name:  "exists",
			Flags: []cli.Flag{flagID},
			Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
				id, err := interfaces.ParseEquipmentID(cCtx.String("id"))
				if err != nil {
					return nil, err
				}
				exists, err := c.EquipmentExists(cCtx.Context, id)
				return api.ExistsResponse{Exists: exists}, err
			}),
		},
		{
			Name:  "owner",
			Usage: "print the ownership ledger holder",
			Flags: []cli.Flag{flagID},
			Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
				id, err := interfaces.ParseEquipmentID(cCtx.String("id"))
				if err != nil {
					return nil, err
				}
				owner, err := c.EquipmentOwner(cCtx.Context, id)
				return api.OwnerResponse{Owner: owner}, err
			}),
		},
		{
			Name:  "last",
			Usage: "print the highest issued equipment id",
			Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
				id, err := c.LastEquipmentID(cCtx.Context)
				return api.EquipmentIDResponse{ID: id}, err
			}),
		},
	},
}

var governanceCommand = &cli.Command{
	Name:  "governance",
	Usage: "contract owner and certifiers",
	Subcommands: []*cli.Command{
		{
			Name:  "owner",
			Usage: "print the contract owner",
			Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
				owner, err := c.ContractOwner(cCtx.Context)
				return api.OwnerResponse{Owner: owner}, err
			}),
		},
		{
			Name:  "is-owner",
			Flags: []cli.Flag{flagAddress},
			Action: withAddress(func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error) {
				isOwner, err := c.IsContractOwner(cCtx.Context, addr)
				return api.IsOwnerResponse{IsOwner: isOwner}, err
			}),
		},
		{
			Name:  "is-certifier",
			Flags: []cli.Flag{flagAddress},
			Action: withAddress(func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error) {
				ok, err := c.IsAuthorizedCertifier(cCtx.Context, addr)
				return api.CertifierResponse{Authorized: ok}, err
			}),
		},
		{
			Name:  "add-certifier",
			Flags: []cli.Flag{flagAddress},
			Action: withAddress(func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error) {
				return api.CertifierResponse{Authorized: true}, c.AddAuthorizedCertifier(cCtx.Context, addr)
			}),
		},
		{
			Name:  "remove-certifier",
			Flags: []cli.Flag{flagAddress},
			Action: withAddress(func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error) {
				return api.CertifierResponse{Authorized: false}, c.RemoveAuthorizedCertifier(cCtx.Context, addr)
			}),
		},
	},
}

var providerCommand = &cli.Command{
	Name:  "provider",
	Usage: "service-provider credentials",
	Subcommands: []*cli.Command{
		{
			Name:  "register",
			Usage: "create or overwrite a provider record as active",
			Flags: []cli.Flag{
				flagAddress,
				&cli.StringFlag{Name: "name"},
				&cli.StringFlag{Name: "certification"},
				&cli.StringFlag{Name: "specialization"},
				&cli.Uint64Flag{Name: "expiry", Required: true, Usage: "clock height the certification expires at"},
			},
			Action: withAddress(func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error) {
				return nil, c.RegisterServiceProvider(cCtx.Context, api.RegisterProviderRequest{
					Provider:            addr,
					Name:                cCtx.String("name"),
					Certification:       cCtx.String("certification"),
					Specialization:      cCtx.String("specialization"),
					CertificationExpiry: cCtx.Uint64("expiry"),
				})
			}),
		},
		{
			Name:  "status",
			Usage: "set the active flag",
			Flags: []cli.Flag{flagAddress, &cli.BoolFlag{Name: "active"}},
			Action: withAddress(func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error) {
				return nil, c.UpdateProviderStatus(cCtx.Context, addr, cCtx.Bool("active"))
			}),
		},
		{
			Name:  "get",
			Flags: []cli.Flag{flagAddress},
			Action: withAddress(func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error) {
				return c.GetServiceProvider(cCtx.Context, addr)
			}),
		},
		{
			Name:  "verified",
			Flags: []cli.Flag{flagAddress},
			Action: withAddress(func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error) {
				ok, err := c.IsVerifiedProvider(cCtx.Context, addr)
				return api.VerifiedResponse{Verified: ok}, err
			}),
		},
	},
}

type clientAction func(cCtx *cli.Context, c *clients.RegistryClient) (any, error)

// withClient builds the client from the global flags and prints the result.
func withClient(fn clientAction) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		key, err := flags.LoadKey(cCtx)
		if err != nil {
			return err
		}
		baseURL, err := serverURL(cCtx)
		if err != nil {
			return err
		}
		out, err := fn(cCtx, clients.NewRegistryClient(baseURL, key))
		if errors.Is(err, clients.ErrNoSigningKey) {
			return fmt.Errorf("this command must be signed, set --%s", flags.KeyFlag.Name)
		}
		if err != nil {
			return err
		}
		if out == nil {
			out = map[string]string{"status": "ok"}
		}
		return printJSON(out)
	}
}

// serverURL resolves srv:// addresses to the preferred SRV target.
func serverURL(cCtx *cli.Context) (string, error) {
	server := cCtx.String(flags.ServerAddrFlag.Name)
	name, ok := strings.CutPrefix(server, "srv://")
	if !ok {
		return server, nil
	}
	urls, err := clients.ResolveServers(cCtx.Context, name, cCtx.String(flags.ResolverFlag.Name), "http")
	if err != nil {
		return "", err
	}
	return urls[0], nil
}

func withAddress(fn func(cCtx *cli.Context, c *clients.RegistryClient, addr interfaces.Identity) (any, error)) cli.ActionFunc {
	return withClient(func(cCtx *cli.Context, c *clients.RegistryClient) (any, error) {
		addr, err := interfaces.NewIdentityFromHex(cCtx.String(flagAddress.Name))
		if err != nil {
			return nil, err
		}
		return fn(cCtx, c, addr)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
