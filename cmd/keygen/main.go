package main

import (
	"fmt"
	"os"

	"github.com/uhyunpark/tradewire/pkg/ledger"
)

func main() {
	fmt.Println("Generating new ledger keypair...")
	signer, err := ledger.GenerateKey()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", signer.Address().Hex())
	fmt.Println("Fund this address on the target chain, then add to .env (KEEP SECRET!):")
	fmt.Println()
	fmt.Printf("LEDGER_PRIVATE_KEY=%s\n", signer.PrivateKeyHex())
}
