package deadletter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// dbDeadLetter represents an abandoned batch in the database
type dbDeadLetter struct {
	ID          int64           `meddler:"id,pk"`
	IndexerName string          `meddler:"indexer_name"`
	TopicID     string          `meddler:"topic_id"`
	EventName   string          `meddler:"event_name"`
	Network     string          `meddler:"network"`
	Address     *common.Address `meddler:"address,address"`
	FirstTxHash *common.Hash    `meddler:"first_tx_hash,hash"`
	Attempts    int             `meddler:"attempts"`
	LastError   string          `meddler:"last_error"`
	FirstBlock  uint64          `meddler:"first_block"`
	LastBlock   uint64          `meddler:"last_block"`
	BatchSize   int             `meddler:"batch_size"`
	Payload     []storedLog     `meddler:"payload,json"`
	CreatedAt   string          `meddler:"created_at"`
}

// storedLog is the JSON form of a log kept in the payload column.
type storedLog struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber uint64         `json:"blockNumber"`
	BlockHash   common.Hash    `json:"blockHash"`
	TxHash      common.Hash    `json:"transactionHash"`
	TxIndex     uint           `json:"transactionIndex"`
	Index       uint           `json:"logIndex"`
	Removed     bool           `json:"removed"`
}

func toStoredLog(log types.Log) storedLog {
	return storedLog{
		Address:     log.Address,
		Topics:      log.Topics,
		Data:        log.Data,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		Index:       log.Index,
		Removed:     log.Removed,
	}
}

func (s storedLog) toLog() types.Log {
	return types.Log{
		Address:     s.Address,
		Topics:      s.Topics,
		Data:        s.Data,
		BlockNumber: s.BlockNumber,
		BlockHash:   s.BlockHash,
		TxHash:      s.TxHash,
		TxIndex:     s.TxIndex,
		Index:       s.Index,
		Removed:     s.Removed,
	}
}

// Record is a stored dead letter.
type Record struct {
	ID          int64
	IndexerName string
	TopicID     string
	EventName   string
	Network     string
	Attempts    int
	LastError   string

	// Address and FirstTxHash identify the first event of the batch; nil for empty batches
	Address     *common.Address
	FirstTxHash *common.Hash

	FirstBlock uint64
	LastBlock  uint64
	BatchSize  int
	CreatedAt  string

	// Logs are the raw logs of the abandoned batch, in delivery order
	Logs []types.Log
}
