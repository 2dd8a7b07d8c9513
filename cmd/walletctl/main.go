package main

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adrenochain/spvwallet/pkg/logger"
	"github.com/adrenochain/spvwallet/pkg/wallet"
)

var log *logger.Logger

var rootCmd = &cobra.Command{
	Use:   "walletctl",
	Short: "Inspect and drive an SPV wallet core from the command line",
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Warn("could not read config file: %v", err)
		}
	}
}

func init() {
	cfg := logger.DefaultConfig()
	cfg.Prefix = "walletctl"
	log = logger.NewLogger(cfg)

	rootCmd.PersistentFlags().String("config", "", "config file (optional)")
	rootCmd.PersistentFlags().String("xpub", "", "extended public key the wallet is derived from")
	rootCmd.PersistentFlags().Uint64("fee-per-kb", wallet.DefaultFeePerKb, "fee rate in satoshi per kb")
	rootCmd.PersistentFlags().Uint32("gap-limit-external", wallet.GapLimitExternal, "external chain gap limit")
	rootCmd.PersistentFlags().Uint32("gap-limit-internal", wallet.GapLimitInternal, "internal chain gap limit")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("xpub", rootCmd.PersistentFlags().Lookup("xpub"))
	viper.BindPFlag("fee_per_kb", rootCmd.PersistentFlags().Lookup("fee-per-kb"))
	viper.BindPFlag("gap_limit_external", rootCmd.PersistentFlags().Lookup("gap-limit-external"))
	viper.BindPFlag("gap_limit_internal", rootCmd.PersistentFlags().Lookup("gap-limit-internal"))

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(addressCmd, balanceCmd, sendCmd)
}

// stdinSeed prompts on stdin for a BIP39-style seed phrase and hashes it
// into seed material. It is a minimal stand-in for the hardware-backed or
// OS-keychain-backed seed providers a production caller would plug in via
// wallet.SeedFunc; walletctl itself has no persistence layer to protect
// (spec.md Non-goals).
func stdinSeed(prompt string, amountHint uint64) ([]byte, bool) {
	fmt.Fprintf(os.Stderr, "%s (spending %d satoshi): ", prompt, amountHint)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil || strings.TrimSpace(line) == "" {
		return nil, true
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(line)))
	return sum[:], false
}

func newCore() (*wallet.WalletCore, error) {
	xpub := viper.GetString("xpub")
	if xpub == "" {
		return nil, fmt.Errorf("--xpub is required")
	}
	mpk, err := wallet.NewMasterPubKey(xpub)
	if err != nil {
		return nil, err
	}
	cfg := &wallet.Config{
		FeePerKb:         viper.GetUint64("fee_per_kb"),
		GapLimitExternal: viper.GetUint32("gap_limit_external"),
		GapLimitInternal: viper.GetUint32("gap_limit_internal"),
	}
	return wallet.NewWalletCore(mpk, cfg, stdinSeed, wallet.Callbacks{
		BalanceChanged: func(balance uint64) {
			log.Info("balance changed: %d satoshi", balance)
		},
		TxAdded: func(tx *wallet.Transaction) {
			log.Info("transaction registered: %s", tx.Hash)
		},
	})
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the next unused address",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := newCore()
		if err != nil {
			return err
		}
		change, _ := cmd.Flags().GetBool("change")
		var addr wallet.Address
		if change {
			addr, err = core.ChangeAddress()
		} else {
			addr, err = core.ReceiveAddress()
		}
		if err != nil {
			return err
		}
		fmt.Println(addr.Value)
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the current wallet balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := newCore()
		if err != nil {
			return err
		}
		fmt.Println(core.Balance())
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Build and sign a transaction paying the given outputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := newCore()
		if err != nil {
			return err
		}
		to, _ := cmd.Flags().GetString("to")
		amount, _ := cmd.Flags().GetString("amount")
		if to == "" || amount == "" {
			return fmt.Errorf("--to and --amount are required")
		}
		sats, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --amount: %w", err)
		}

		tx, err := core.CreateTxForOutputs([]wallet.TxOutput{
			{Amount: sats, Address: wallet.Address{Value: to}},
		}, nil)
		if err != nil {
			return err
		}

		err = core.SignTransaction(tx, "authorize send", func(priv *btcec.PrivateKey, input *wallet.TxInput, tx *wallet.Transaction) error {
			// walletctl has no wire codec (spec.md Non-goals): it writes
			// the derived compressed public key into the input's script
			// rather than producing a real unlocking script.
			input.Script = priv.PubKey().SerializeCompressed()
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Printf("built transaction %s spending %d input(s), %d output(s)\n",
			tx.Hash, len(tx.Inputs), len(tx.Outputs))
		return nil
	},
}

func init() {
	addressCmd.Flags().Bool("change", false, "print a change address instead of a receive address")
	sendCmd.Flags().String("to", "", "destination address")
	sendCmd.Flags().String("amount", "", "amount in satoshi")
}

func main() {
	defer log.Close()
	if err := rootCmd.Execute(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}
