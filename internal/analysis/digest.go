package analysis

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// Digest fingerprints the dataset contents with a double SHA-256 over a
// length-prefixed encoding of every wallet and transaction, in stored order.
// The dataset id, source and creation time are not part of the digest, so
// identical data loaded twice reports the same value.
func Digest(ds *models.Dataset) string {
	var buf bytes.Buffer
	putUint := func(v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf.Write(b[:])
	}
	putString := func(s string) {
		putUint(uint64(len(s)))
		buf.WriteString(s)
	}
	putFloat := func(f float64) { putUint(math.Float64bits(f)) }

	putUint(uint64(len(ds.Wallets)))
	for _, w := range ds.Wallets {
		putString(w.ID)
		putFloat(w.TotalReceived)
		putFloat(w.TotalSent)
		putFloat(w.NetBalance)
		putUint(uint64(w.TransactionCount))
	}

	putUint(uint64(len(ds.Transactions)))
	for _, tx := range ds.Transactions {
		putString(tx.ID)
		putString(tx.FromAddr)
		putString(tx.ToAddr)
		putFloat(tx.Amount)
		putUint(uint64(tx.Timestamp.UnixNano()))
	}

	return chainhash.DoubleHashH(buf.Bytes()).String()
}
