// Package httpapi exposes the chain and mempool engines over HTTP on a
// gin.Engine: release mode, open CORS, a /api/health endpoint, and one
// handler per engine operation, each following the same request decode ->
// engine call -> error envelope shape.
package httpapi

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chain-lens/pkg/chain"
	"chain-lens/pkg/crypto"
	"chain-lens/pkg/engine"
	"chain-lens/pkg/engineerr"
)

// errorEnvelope is the JSON error shape every non-2xx response carries:
// ok=false plus a {code, message} pair.
type errorEnvelope struct {
	OK    bool       `json:"ok"`
	Error *errorInfo `json:"error"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an engineerr.Kind to its HTTP status: KindNotFound is a
// 404, KindInternal is a 500, and every other kind is a 400.
func statusFor(kind engineerr.Kind) int {
	switch kind {
	case engineerr.KindNotFound:
		return http.StatusNotFound
	case engineerr.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeErr(c *gin.Context, err error) {
	kind := engineerr.KindOf(err)
	c.JSON(statusFor(kind), errorEnvelope{
		OK:    false,
		Error: &errorInfo{Code: kind.String(), Message: err.Error()},
	})
}

// Router builds the engine's gin.Engine: release mode, open CORS, health
// check, and the chain/mempool/verify_signature routes.
func Router(eng *engine.Engine, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginZapLogger(log))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.POST("/block", handleCreateBlock(eng))
	r.GET("/block/current", handleGetCurrentBlock(eng))
	r.DELETE("/block/current", handleDeleteCurrentBlock(eng, log))
	r.POST("/transaction/mempool", handleAdmitToMempool(eng))
	r.GET("/transaction", handleFindTransaction(eng))
	r.GET("/transaction/mempool/list", handleListMempool(eng))
	r.POST("/chain/transaction/verify_signature", handleVerifySignature())

	return r
}

func ginZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func handleCreateBlock(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in chain.BlockInput
		if err := c.ShouldBindJSON(&in); err != nil {
			writeErr(c, engineerr.Wrap(engineerr.KindShape, err, "decoding block request"))
			return
		}
		block, err := eng.CreateBlock(c.Request.Context(), in)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, block)
	}
}

func handleGetCurrentBlock(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		block, err := eng.GetCurrentBlock()
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, block)
	}
}

func handleDeleteCurrentBlock(eng *engine.Engine, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, err := eng.GetCurrentBlock()
		if err != nil {
			writeErr(c, engineerr.New(engineerr.KindConsensus, "no current block to delete"))
			return
		}
		if err := eng.DeleteBlock(current.Hash); err != nil {
			writeErr(c, err)
			return
		}
		eng.LogDeletion(current.Hash)
		c.JSON(http.StatusOK, true)
	}
}

func handleAdmitToMempool(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in chain.TransactionInput
		if err := c.ShouldBindJSON(&in); err != nil {
			writeErr(c, engineerr.Wrap(engineerr.KindShape, err, "decoding transaction request"))
			return
		}
		tx, err := eng.AdmitToMempool(c.Request.Context(), in)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, tx)
	}
}

func handleFindTransaction(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		txid := c.Query("txid")
		if txid == "" {
			writeErr(c, engineerr.New(engineerr.KindShape, "txid query parameter is required"))
			return
		}
		tx, err := eng.FindTransaction(txid)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	}
}

func handleListMempool(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		txs, err := eng.ListMempool()
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

// verifySignatureRequest is a raw pubkey/signature/message triple plus the
// timestamp used for the historical low-S cutoff, independent of any
// stored transaction.
type verifySignatureRequest struct {
	Pubkey    string `json:"pubkey"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type verifySignatureResponse struct {
	Valid bool `json:"valid"`
}

func handleVerifySignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in verifySignatureRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			writeErr(c, engineerr.Wrap(engineerr.KindShape, err, "decoding verify_signature request"))
			return
		}
		message, err := hex.DecodeString(in.Message)
		if err != nil {
			writeErr(c, engineerr.Wrap(engineerr.KindShape, err, "message is not valid hex"))
			return
		}
		valid, err := crypto.VerifyECDSA(in.Pubkey, in.Signature, message, time.Unix(in.Timestamp, 0).UTC())
		if err != nil {
			c.JSON(http.StatusOK, verifySignatureResponse{Valid: false})
			return
		}
		c.JSON(http.StatusOK, verifySignatureResponse{Valid: valid})
	}
}
