// handlers/postback_routes.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"easyearn-backend/services"

	"github.com/gofiber/fiber/v2"
)

// SetupPostbackRoutes mounts one GET+POST endpoint per offerwall provider.
// These are public: authenticity comes from the signature toolkit, not from
// gateway headers — providers call us directly.
func SetupPostbackRoutes(app *fiber.App, svc *services.PostbackService) {
	for name := range svc.Providers {
		p := svc.Providers[name]
		h := postbackHandler(svc, p)
		app.Get("/postback/"+p.Name, h)
		app.Post("/postback/"+p.Name, h)
	}
}

func postbackHandler(svc *services.PostbackService, p *services.ProviderConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := collectParams(c)
		rawURL := c.Protocol() + "://" + c.Hostname() + c.OriginalURL()
		body := append([]byte(nil), c.Body()...)

		// debug=true: parse + signature diagnostics, no state mutation.
		if debug := params["debug"]; debug == "true" || debug == "1" {
			parsed := p.Parse(params)
			valid := services.VerifySignature(p.Scheme, rawURL, body, p.Secrets, firstSignature(params, p))
			return c.JSON(fiber.Map{
				"ok":              true,
				"debug":           true,
				"provider":        p.Name,
				"parsed":          parsed,
				"task_key":        p.TaskKey(parsed),
				"signature_valid": valid,
				"enforcing":       len(p.Secrets) > 0,
			})
		}

		result, err := svc.Handle(p, params, rawURL, body)
		if err != nil {
			return postbackError(c, p, err)
		}

		log.Printf("💰 [POSTBACK] %s %s → %s (%d cents)", p.Name, result.TaskKey, result.Outcome, result.AmountCents)

		if p.Ack == services.AckToken {
			c.Set("Cache-Control", "no-store")
			return c.SendString("1")
		}
		resp := fiber.Map{"ok": true, "status": string(result.Outcome), "task_key": result.TaskKey}
		if result.AmountCents != 0 {
			resp["amount_cents"] = result.AmountCents
		}
		if result.Note != "" {
			resp["note"] = result.Note
		}
		return c.JSON(resp)
	}
}

func postbackError(c *fiber.Ctx, p *services.ProviderConfig, err error) error {
	if p.Ack == services.AckToken {
		c.Set("Cache-Control", "no-store")
		switch {
		case errors.Is(err, services.ErrMissingParams),
			errors.Is(err, services.ErrBadSignature),
			errors.Is(err, services.ErrInvalidAmount):
			return c.SendString("0")
		default:
			// Store failure: 500 so the provider's retry re-delivers.
			log.Printf("❌ [POSTBACK] %s internal error: %v", p.Name, err)
			return c.Status(fiber.StatusInternalServerError).SendString("0")
		}
	}

	switch {
	case errors.Is(err, services.ErrMissingParams):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "missing transaction id or user id"})
	case errors.Is(err, services.ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "missing or invalid amount"})
	case errors.Is(err, services.ErrBadSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "signature verification failed"})
	default:
		log.Printf("❌ [POSTBACK] %s internal error: %v", p.Name, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "internal error"})
	}
}

// collectParams merges body parameters (form or JSON) with the query string;
// query values win on collision.
func collectParams(c *fiber.Ctx) map[string]string {
	params := map[string]string{}
	if c.Method() == fiber.MethodPost {
		ct := string(c.Request().Header.ContentType())
		if strings.Contains(ct, "application/json") {
			var m map[string]interface{}
			if err := json.Unmarshal(c.Body(), &m); err == nil {
				for k, v := range m {
					switch val := v.(type) {
					case float64:
						params[k] = strconv.FormatFloat(val, 'f', -1, 64)
					case string:
						params[k] = val
					default:
						params[k] = fmt.Sprint(val)
					}
				}
			}
		} else {
			c.Request().PostArgs().VisitAll(func(k, v []byte) {
				params[string(k)] = string(v)
			})
		}
	}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		params[string(k)] = string(v)
	})
	return params
}

func firstSignature(params map[string]string, p *services.ProviderConfig) string {
	for _, name := range p.SignatureParams {
		if v := params[name]; v != "" {
			return v
		}
	}
	return ""
}
