package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"blast/internal/domain"
	"blast/internal/gateway"
	"blast/internal/observability"
	"blast/internal/store"
	"blast/internal/util"
)

// Route identifies which gateway operation(s) a broadcast's button/media
// combination maps to. Keeping it an explicit value makes the selection table
// directly testable.
type Route int

const (
	RouteText Route = iota
	RouteImageCaption
	RouteVideoCaption
	RouteDocumentThenText
	RouteActionButtons
	RouteMediaThenActionButtons
	RouteReplyButtons
	RouteReplyButtonsImage
	RouteReplyButtonsVideo
	RouteDocumentThenReplyButtons
)

// RouteFor selects the gateway operation for a button/media combination.
// url/call buttons cannot carry inline media, so media goes out first as a
// standalone message. Documents cannot carry captions reliably, so caption
// text follows as a separate send.
func RouteFor(buttons []domain.Button, media *domain.Media) Route {
	if len(buttons) > 0 {
		if buttons[0].Kind == domain.ButtonReply {
			if media == nil {
				return RouteReplyButtons
			}
			switch media.Kind {
			case domain.MediaImage:
				return RouteReplyButtonsImage
			case domain.MediaVideo:
				return RouteReplyButtonsVideo
			default:
				return RouteDocumentThenReplyButtons
			}
		}
		if media != nil {
			return RouteMediaThenActionButtons
		}
		return RouteActionButtons
	}
	if media != nil {
		switch media.Kind {
		case domain.MediaImage:
			return RouteImageCaption
		case domain.MediaVideo:
			return RouteVideoCaption
		default:
			return RouteDocumentThenText
		}
	}
	return RouteText
}

type deliveryOutcome struct {
	delivered bool
	errMsg    string
	variation *int
}

// deliver builds the outgoing message for one recipient and drives it through
// the gateway operation the broadcast's shape selects.
func (d *Dispatcher) deliver(ctx context.Context, job store.Broadcast, rcpt store.Recipient) deliveryOutcome {
	phone := util.NormalizePhone(rcpt.Phone, d.CountryCode)

	template := job.Message
	var variation *int
	if n := len(job.MessageVariations); n > 0 {
		idx := d.Rand.Intn(n)
		template = job.MessageVariations[idx]
		variation = &idx
	}
	body := util.RenderMessage(template, rcpt.Name, d.NameFallback)

	buttons := decodeButtons(job.ButtonsJSON)
	media := mediaOf(job)

	var res gateway.Result
	var err error

	switch RouteFor(buttons, media) {
	case RouteText:
		res, err = d.call(ctx, "send-text", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendText(ctx, phone, body)
		})

	case RouteImageCaption:
		res, err = d.call(ctx, "send-image", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendImage(ctx, phone, media.URL, body)
		})

	case RouteVideoCaption:
		res, err = d.call(ctx, "send-video", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendVideo(ctx, phone, media.URL, body)
		})

	case RouteDocumentThenText:
		res, err = d.call(ctx, "send-document", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendDocument(ctx, phone, media.URL)
		})
		if err == nil && res.Delivered && body != "" {
			res, err = d.followUp(ctx, "send-text", func(ctx context.Context) (gateway.Result, error) {
				return d.Gateway.SendText(ctx, phone, body)
			})
		}

	case RouteActionButtons:
		res, err = d.call(ctx, "send-button-actions", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendActionButtons(ctx, phone, body, buttons)
		})

	case RouteMediaThenActionButtons:
		res, err = d.sendStandaloneMedia(ctx, phone, media)
		if err == nil && res.Delivered {
			res, err = d.followUp(ctx, "send-button-actions", func(ctx context.Context) (gateway.Result, error) {
				return d.Gateway.SendActionButtons(ctx, phone, body, buttons)
			})
		}

	case RouteReplyButtons:
		res, err = d.call(ctx, "send-button-list", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendReplyButtons(ctx, phone, body, buttons)
		})

	case RouteReplyButtonsImage:
		res, err = d.call(ctx, "send-button-list-image", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendReplyButtonsImage(ctx, phone, body, buttons, media.URL)
		})

	case RouteReplyButtonsVideo:
		res, err = d.call(ctx, "send-button-list-video", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendReplyButtonsVideo(ctx, phone, body, buttons, media.URL)
		})

	case RouteDocumentThenReplyButtons:
		res, err = d.call(ctx, "send-document", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendDocument(ctx, phone, media.URL)
		})
		if err == nil && res.Delivered {
			res, err = d.followUp(ctx, "send-button-list", func(ctx context.Context) (gateway.Result, error) {
				return d.Gateway.SendReplyButtons(ctx, phone, body, buttons)
			})
		}
	}

	if err != nil {
		// Transport fault (gateway unreachable, timeout, breaker open).
		return deliveryOutcome{delivered: false, errMsg: err.Error(), variation: variation}
	}
	if !res.Delivered {
		return deliveryOutcome{delivered: false, errMsg: res.Err, variation: variation}
	}
	return deliveryOutcome{delivered: true, variation: variation}
}

// sendStandaloneMedia ships the attachment with no caption ahead of a
// url/call button message.
func (d *Dispatcher) sendStandaloneMedia(ctx context.Context, phone string, media *domain.Media) (gateway.Result, error) {
	switch media.Kind {
	case domain.MediaImage:
		return d.call(ctx, "send-image", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendImage(ctx, phone, media.URL, "")
		})
	case domain.MediaVideo:
		return d.call(ctx, "send-video", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendVideo(ctx, phone, media.URL, "")
		})
	default:
		return d.call(ctx, "send-document", func(ctx context.Context) (gateway.Result, error) {
			return d.Gateway.SendDocument(ctx, phone, media.URL)
		})
	}
}

// followUp sends the second half of a two-step delivery after a short fixed
// pause.
func (d *Dispatcher) followUp(ctx context.Context, op string, fn func(ctx context.Context) (gateway.Result, error)) (gateway.Result, error) {
	if d.MediaFollowupDelay > 0 {
		if err := d.Sleep(ctx, d.MediaFollowupDelay); err != nil {
			return gateway.Result{}, err
		}
	}
	return d.call(ctx, op, fn)
}

// call funnels every gateway operation through the shared rate limiter and
// circuit breaker, and records metrics per operation.
func (d *Dispatcher) call(ctx context.Context, op string, fn func(ctx context.Context) (gateway.Result, error)) (gateway.Result, error) {
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return gateway.Result{}, err
		}
	}

	start := time.Now()
	var res gateway.Result
	var err error
	if d.Breaker != nil {
		var resAny any
		resAny, err = d.Breaker.Execute(func() (any, error) {
			r, callErr := fn(ctx)
			if callErr != nil {
				return nil, callErr
			}
			return r, nil
		})
		if err == nil {
			res = resAny.(gateway.Result)
		}
	} else {
		res, err = fn(ctx)
	}
	observability.SendLatency.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		observability.GatewaySends.WithLabelValues(op, "transport_error").Inc()
	case !res.Delivered:
		observability.GatewaySends.WithLabelValues(op, "rejected").Inc()
	default:
		observability.GatewaySends.WithLabelValues(op, "ok").Inc()
	}
	return res, err
}

func decodeButtons(raw []byte) []domain.Button {
	if len(raw) == 0 {
		return nil
	}
	var out []domain.Button
	_ = json.Unmarshal(raw, &out)
	return out
}

func mediaOf(job store.Broadcast) *domain.Media {
	if job.MediaKind == "" || job.MediaURL == "" {
		return nil
	}
	return &domain.Media{Kind: domain.MediaKind(job.MediaKind), URL: job.MediaURL}
}
