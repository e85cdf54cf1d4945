// mintpass signs a mint pass for one collectible instance. The minting
// flow runs this (or the equivalent library call) after recording a mint;
// it is also handy for exercising a local passd.
//
// Usage:
//
//	mintpass -secret <hex> -purpose image -instance 7641 \
//	  -guild farmer -gender female -seed 123456 \
//	  -subject 0xABCD... [-ttl 15m]
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/manoloenriquez/vault7641/internal/token"
	"github.com/manoloenriquez/vault7641/internal/traits"
)

func main() {
	var (
		secretHex = flag.String("secret", os.Getenv("MINT_PASS_SECRET"), "hex-encoded HMAC secret")
		purpose   = flag.String("purpose", "image", "token purpose: image or traits")
		instance  = flag.Uint64("instance", 0, "instance id")
		guildStr  = flag.String("guild", "", "guild: farmer, fisher, miner, warrior")
		genderStr = flag.String("gender", "", "gender: male or female")
		seed      = flag.Uint64("seed", 0, "per-instance derivation seed")
		subject   = flag.String("subject", "", "owner wallet address")
		ttl       = flag.Duration("ttl", 15*time.Minute, "pass lifetime")
	)
	flag.Parse()

	secret, err := hex.DecodeString(*secretHex)
	if err != nil || len(secret) < 32 {
		fatalf("need a hex secret of at least 32 bytes (-secret or MINT_PASS_SECRET)")
	}

	var p token.Purpose
	switch token.Purpose(*purpose) {
	case token.PurposeImage, token.PurposeTraits:
		p = token.Purpose(*purpose)
	default:
		fatalf("invalid -purpose %q", *purpose)
	}

	guild, err := traits.ParseGuild(*guildStr)
	if err != nil {
		fatalf("%v", err)
	}
	gender, err := traits.ParseGender(*genderStr)
	if err != nil {
		fatalf("%v", err)
	}
	if !common.IsHexAddress(*subject) {
		fatalf("invalid -subject address %q", *subject)
	}

	now := time.Now()
	payload := token.Payload{
		Purpose:    p,
		InstanceID: *instance,
		Guild:      guild,
		Gender:     gender,
		Seed:       *seed,
		Subject:    common.HexToAddress(*subject),
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(*ttl).Unix(),
	}

	tok, sig, err := token.Sign(payload, secret)
	if err != nil {
		fatalf("sign: %v", err)
	}

	fmt.Printf("token=%s\n", tok)
	fmt.Printf("signature=%s\n", sig)
	fmt.Printf("expires_at=%s\n", time.Unix(payload.ExpiresAt, 0).UTC().Format(time.RFC3339))
	fmt.Printf("\nGET /api/instance/%d/%s?token=%s&signature=%s\n", *instance, p, tok, sig)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "mintpass: "+format+"\n", args...)
	os.Exit(2)
}
