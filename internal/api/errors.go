package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"market-core/internal/market"
	"market-core/pkg/exchanges/common"
	"market-core/pkg/i18n"
)

// respondError maps adapter and session errors onto HTTP statuses with a
// translated user notice.
func respondError(c *gin.Context, exchange string, err error) {
	_ = c.Error(err)

	var (
		remote      *common.RemoteAPIError
		unsupported *common.UnsupportedIntervalError
	)
	switch {
	case errors.As(err, &unsupported):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unsupported interval",
			"message": i18n.T("UnsupportedInterval", unsupported.Interval, unsupported.Exchange),
		})
	case errors.Is(err, market.ErrUnknownExchange):
		notFound(c, exchange)
	case errors.Is(err, market.ErrNoSymbols):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "no symbols",
			"message": i18n.T("NoSymbols", exchange),
		})
	case errors.As(err, &remote):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "exchange api error",
			"message": i18n.T("RemoteAPIFailed", remote.Exchange, remote.Message),
		})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   "upstream timeout",
			"message": err.Error(),
		})
	case errors.Is(err, common.ErrTransport):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "exchange unreachable",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal error",
			"message": err.Error(),
		})
	}
}

func notFound(c *gin.Context, exchange string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "unknown exchange",
		"message": i18n.T("ExchangeNotIntegrated", exchange),
	})
}

func missing(c *gin.Context, param string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "missing parameter",
		"message": i18n.T("MissingParameter", param),
	})
}
