package main

import (
	"log"

	"github.com/daniel8038/tg-golddog-alert/internal"
	"github.com/daniel8038/tg-golddog-alert/pkg/nostd"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "golddog",
	Short: "Golddog - 链上新币自动交易与提醒",
	Long:  ``,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env 不存在时忽略
		_ = godotenv.Load(envFile)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return internal.Run(configFile)
	},
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "生成接口令牌的 bcrypt 哈希，填入 api.token_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := nostd.BcryptEncode([]byte(args[0]))
		if err != nil {
			return err
		}
		cmd.Println(string(hash))
		return nil
	},
}

func init() {
	// 全局配置文件标志
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "环境变量文件路径")
	rootCmd.AddCommand(hashTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
