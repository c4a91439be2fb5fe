package rpc

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ChainDispatch/internal/common"
)

var (
	tooManyResultsPattern = regexp.MustCompile(`Query returned more than \d+ results`)
	suggestedRangePattern = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

// IsTooManyResultsError reports whether err is a node refusing an eth_getLogs range because
// it matches too many logs. The node's error data is returned alongside, since it may carry
// a suggested range (see ParseSuggestedBlockRange).
func IsTooManyResultsError(err error) (bool, string) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return false, ""
	}

	data := fmt.Sprint(dataErr.ErrorData())

	return tooManyResultsPattern.MatchString(data), data
}

// ParseSuggestedBlockRange extracts the first "[0xfrom, 0xto]" range from a node's error data,
// e.g. "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc].".
func ParseSuggestedBlockRange(data string) (fromBlock, toBlock uint64, ok bool) {
	match := suggestedRangePattern.FindStringSubmatch(data)
	if match == nil {
		return 0, 0, false
	}

	from, err := common.ParseUint64orHex(&match[1])
	if err != nil {
		return 0, 0, false
	}

	to, err := common.ParseUint64orHex(&match[2])
	if err != nil {
		return 0, 0, false
	}

	return from, to, true
}
