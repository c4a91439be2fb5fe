package db

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

type hexRow struct {
	ID      int64           `meddler:"id,pk"`
	Hash    common.Hash     `meddler:"hash,hash"`
	MaybeTx *common.Hash    `meddler:"maybe_tx,hash"`
	Address common.Address  `meddler:"address,address"`
	MaybeTo *common.Address `meddler:"maybe_to,address"`
}

func TestHexMeddlers(t *testing.T) {
	sqlDB, err := NewSQLiteDB(filepath.Join(t.TempDir(), "hex.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = sqlDB.Exec(`CREATE TABLE hex_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hash TEXT, maybe_tx TEXT, address TEXT, maybe_to TEXT
	)`)
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	rows := []*hexRow{
		{
			Hash:    common.HexToHash("0x01"),
			MaybeTx: nil,
			Address: common.HexToAddress("0x02"),
			MaybeTo: &to,
		},
		{
			Hash:    common.HexToHash("0xff"),
			MaybeTx: &common.Hash{0x1},
			Address: common.Address{},
			MaybeTo: nil,
		},
	}

	for _, row := range rows {
		require.NoError(t, meddler.Insert(sqlDB, "hex_rows", row))
	}

	var loaded []*hexRow
	require.NoError(t, meddler.QueryAll(sqlDB, &loaded, `SELECT * FROM hex_rows ORDER BY id`))
	require.Equal(t, rows, loaded)

	var raw string
	require.NoError(t, sqlDB.QueryRow(`SELECT address FROM hex_rows WHERE id = 1`).Scan(&raw))
	require.Equal(t, common.HexToAddress("0x02").Hex(), raw)
}
