package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env não sobrescreve variáveis já exportadas
	_ = godotenv.Load()

	cfg := defaultConfig()

	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Reverse proxy com controle de admissão por janela deslizante",
		Long: "Reverse proxy que conta requisições por cliente numa janela deslizante e " +
			"bane permanentemente quem ultrapassa o limite. Banimentos só são desfeitos via /admin/unban.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	bindServeFlags(rootCmd, &cfg)

	bansCmd := &cobra.Command{
		Use:   "bans",
		Short: "Inspeciona o arquivo/banco de banimentos",
	}
	bansCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Lista os banimentos persistidos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBansList(cmd.OutOrStdout(), cfg)
		},
	})
	rootCmd.AddCommand(bansCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
