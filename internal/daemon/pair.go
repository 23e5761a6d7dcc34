package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pairforge/agent/internal/models"
)

// getPair provisions a pairing code for a phone number
//
//	@Summary		Request a pairing code
//	@Description	Validates the number, opens a protocol session and returns a single-use pairing code. Credential delivery continues in the background.
//	@Tags			pairing
//	@Produce		json
//	@Param			number	query		string			true	"Phone number in international format"
//	@Success		200		{object}	map[string]any	"Pairing code issued"
//	@Failure		400		{object}	map[string]any	"Invalid or missing number"
//	@Failure		503		{object}	map[string]any	"Pairing code request failed"
//	@Failure		500		{object}	map[string]any	"Session initialization failed"
//	@Router			/pair [get]
func (s *Server) getPair(c *gin.Context) {

	number := c.Query("number")
	if len(number) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Phone number is required. Use ?number=1234567890",
		})
		return
	}

	// The timeout only covers obtaining the pairing code. Delivery and
	// cleanup continue in the background after the response is written.
	ctx, cancel := context.WithTimeout(
		c.Request.Context(),
		s.Config.Server.Limits.RequestTimeout,
	)
	defer cancel()

	pairing, err := s.Pairing.Start(ctx, number)

	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidIdentifier):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid phone number. Enter your full international number (e.g. 15551234567 for US, 447911123456 for UK) without + or spaces.",
			})

		case errors.Is(err, models.ErrPairingRequest):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Failed to get pairing code. Please check your phone number and try again.",
				"details": err.Error(),
			})

		default:
			logrus.WithError(err).Errorln("Session initialization failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to initialize session",
				"details": err.Error(),
			})
		}
		return
	}

	// An empty code means the session was already paired and no code
	// entry is needed on the device.
	message := "Use this code to pair your device"
	if len(pairing.Code) == 0 {
		message = "Device already paired; credentials will be delivered shortly"
	}

	c.JSON(http.StatusOK, gin.H{
		"number":  pairing.Number,
		"code":    pairing.Code,
		"message": message,
	})
}
