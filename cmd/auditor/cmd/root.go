package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/config"
)

var (
	version = "1.0.0"

	verbose bool
	cfg     config.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "auditor",
	Short: "Audita itens de NF-e contra tabelas de regras fiscais",
	Long: `Auditor confere ICMS, IPI, PIS, COFINS e DIFAL de cada item das NF-e
contra as tabelas de regras por NCM (e por UF, no caso do DIFAL).

Exemplos:
  # Auditar entradas e saídas com as tabelas em CSV
  auditor run --entradas ./xml/entradas --saidas ./xml/saidas \
    --icms regras_icms.csv --ipi tipi.xlsx --pis-cofins pis_cofins.csv -o auditoria.xlsx

  # Resumo na tela, sem gravar arquivo
  auditor run --saidas ./xml --icms regras_icms.csv`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if verbose {
			if l, err := zap.NewDevelopment(); err == nil {
				logger = l
			}
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Mostra o log detalhado da execução")
}
