package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"liquid-node/models"
	"liquid-node/signature"
)

var (
	flagOutDir     string
	flagBalances   map[string]int64
	flagBaseTarget uint64
)

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "generate a generator key and a signed genesis block",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeGenesis(flagOutDir, flagBalances, flagBaseTarget, time.Now().UnixMilli())
	},
}

func init() {
	genesisCmd.Flags().StringVar(&flagOutDir, "out-dir", "bootstrap", "directory to write generator.key and genesis.json to")
	genesisCmd.Flags().StringToInt64Var(&flagBalances, "balance", nil, "initial balances as address=amount")
	genesisCmd.Flags().Uint64Var(&flagBaseTarget, "base-target", 100, "base target of the genesis block")
}

func writeGenesis(dir string, balances map[string]int64, baseTarget uint64, ts int64) error {
	if len(balances) == 0 {
		return fmt.Errorf("at least one --balance is required")
	}
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("could not generate key: %w", err)
	}

	addrs := make([]string, 0, len(balances))
	for addr := range balances {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	txs := make([]*models.Transaction, 0, len(addrs))
	for _, addr := range addrs {
		txs = append(txs, &models.Transaction{
			ID:        "genesis-" + addr,
			Recipient: models.Address(addr),
			Amount:    balances[addr],
			Timestamp: ts,
		})
	}

	genesis := &models.Block{
		Version:             1,
		Timestamp:           ts,
		BaseTarget:          baseTarget,
		GenerationSignature: make([]byte, 32),
		Transactions:        txs,
	}
	if err := signature.SignBlock(sk, genesis); err != nil {
		return fmt.Errorf("could not sign genesis: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "generator.key"), []byte(hex.EncodeToString(sk.Seed())), 0o600); err != nil {
		return err
	}
	body, err := json.MarshalIndent(genesis, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "genesis.json"), body, 0o644); err != nil {
		return err
	}
	fmt.Printf("genesis %s generated by %s\n", genesis.ID().Short(), models.PublicKey(pk).Address())
	return nil
}
