package ethrpc

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"
)

const (
	nativeDecimals = 4
	zeroNative     = "0.0000"
	zeroWei        = "0x0"
)

var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	weiPerNative   = new(big.Float).SetInt(big.NewInt(params.Ether))
)

func (h HexQuantity) Big() (*big.Int, error) {
	s := string(h)
	if s == "" {
		return nil, fmt.Errorf("empty hex quantity")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if s == "" {
		return big.NewInt(0), nil
	}
	n := new(big.Int)
	if _, ok := n.SetString(s, 16); !ok {
		return nil, fmt.Errorf("invalid hex quantity: %q", h)
	}
	return n, nil
}

func BigToHexQuantity(n *big.Int) string {
	if n == nil || n.Sign() <= 0 {
		return zeroWei
	}
	return hexutil.EncodeBig(n)
}

func NormalizeHex0x(s string) string {
	if s == "" {
		return ""
	}
	return "0x" + Strip0x(s)
}

func Strip0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

// WeiToNative renders a hex wei amount in native units with 4 decimals.
// Malformed or negative input yields "0.0000".
func WeiToNative(wei string) string {
	n, err := HexQuantity(strings.TrimSpace(wei)).Big()
	if err != nil || n.Sign() < 0 {
		return zeroNative
	}
	v := new(big.Float).SetInt(n)
	v.Quo(v, weiPerNative)
	return v.Text('f', nativeDecimals)
}

// NativeToWei converts a decimal native amount to a hex wei quantity.
// The multiplication is done in float64, so amounts with many significant
// digits are not exact. Malformed, negative or non-finite input yields "0x0".
func NativeToWei(native string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(native), 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return zeroWei
	}
	w := f * params.Ether
	if math.IsInf(w, 0) {
		return zeroWei
	}
	n, _ := new(big.Float).SetFloat64(w).Int(nil)
	return BigToHexQuantity(n)
}

// ValidateAddress reports whether s is "0x" followed by exactly 40 hex
// characters. Checksum casing is not checked.
func ValidateAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// FormatAddress shortens an address to 0x1234...abcd for display.
func FormatAddress(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}
