package main

import (
	"fmt"

	"github.com/allaspectsdev/genrelay/internal/config"
	"github.com/allaspectsdev/genrelay/internal/daemon"
	"github.com/allaspectsdev/genrelay/internal/vault"
)

type startCmd struct {
	Foreground bool `short:"f" help:"Run in the foreground and log to the console."`
}

func (s *startCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	return daemon.Run(cfg, s.Foreground)
}

type stopCmd struct{}

func (stopCmd) Run(g *Globals) error {
	if _, err := g.load(); err != nil {
		return err
	}
	if err := daemon.Stop(); err != nil {
		return err
	}
	fmt.Println("genrelay stopped")
	return nil
}

type statusCmd struct{}

func (statusCmd) Run(g *Globals) error {
	if _, err := g.load(); err != nil {
		return err
	}
	return daemon.Status()
}

type setupCmd struct {
	NonInteractive bool `name:"non-interactive" help:"Only write the default config."`
}

func (s *setupCmd) Run() error {
	if s.NonInteractive {
		if err := config.InitConfig(); err != nil {
			return err
		}
		fmt.Println("Setup complete. Run 'genrelay start' to begin.")
		return nil
	}

	fmt.Println("genrelay setup")
	fmt.Println("==============")
	fmt.Println()

	if err := config.InitConfig(); err != nil {
		return err
	}

	fmt.Println("\nTo add API keys, run: genrelay keys set <provider>")
	fmt.Printf("Known providers: %v\n", vault.DefaultProviders)
	fmt.Println("Keys may also come from GENRELAY_KEY_<PROVIDER> environment variables.")
	fmt.Println()
	fmt.Println("Setup complete. Run 'genrelay start' to begin.")
	return nil
}

type initConfigCmd struct{}

func (initConfigCmd) Run() error {
	return config.InitConfig()
}

type configExportCmd struct {
	Path string `arg:"" optional:"" default:"genrelay-export.toml" help:"Destination file."`
}

func (c *configExportCmd) Run(g *Globals) error {
	if _, err := g.load(); err != nil {
		return err
	}
	if err := config.ExportConfig(c.Path); err != nil {
		return err
	}
	fmt.Printf("Config exported to %s\n", c.Path)
	return nil
}

type configImportCmd struct {
	Path string `arg:"" type:"existingfile" help:"TOML file to import."`
}

func (c *configImportCmd) Run(g *Globals) error {
	// Load first so the import overwrites the active config file.
	if _, err := g.load(); err != nil {
		return err
	}
	if err := config.ImportConfig(c.Path); err != nil {
		return err
	}
	fmt.Printf("Config imported from %s\n", c.Path)
	return nil
}

type installServiceCmd struct{}

func (installServiceCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if err := daemon.InstallService(cfg.Server.DataDir); err != nil {
		return err
	}
	fmt.Println("Service installed successfully")
	return nil
}

type uninstallServiceCmd struct{}

func (uninstallServiceCmd) Run() error {
	return daemon.UninstallService()
}
