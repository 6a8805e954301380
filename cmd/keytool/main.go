// Command keytool writes a password-encrypted signing key file for the
// oracle's ledger wallet.
//
// Usage:
//
//	GBO_KEY_PASSWORD=... keytool -out signer.json [-key 0x...]
//
// Without -key a fresh key is generated.
package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/greenbond-oracle/internal/crypto"
)

func main() {
	out := flag.String("out", "signer.json", "output key file")
	hexKey := flag.String("key", "", "hex private key to encrypt (generated when empty)")
	flag.Parse()

	if err := run(*out, *hexKey, os.Getenv("GBO_KEY_PASSWORD")); err != nil {
		fmt.Fprintf(os.Stderr, "keytool: %v\n", err)
		os.Exit(1)
	}
}

func run(out, hexKey, password string) error {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey != "" {
		key, err = crypto.ParseKey(hexKey)
	} else {
		key, err = ethcrypto.GenerateKey()
	}
	if err != nil {
		return err
	}

	data, err := crypto.EncryptKey(key, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("wrote %s for %s\n", out, ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}
