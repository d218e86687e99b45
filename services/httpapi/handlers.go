package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"pwmcode-go/bus"
	"pwmcode-go/errcode"
	"pwmcode-go/services/hal"
	"pwmcode-go/types"
)

const kindPWM = string(types.KindPWM)

type outputView struct {
	Name   string                  `json:"name"`
	Domain string                  `json:"domain"`
	Info   any                     `json:"info"`
	Level  *float32                `json:"level,omitempty"`
	Status *types.CapabilityStatus `json:"status,omitempty"`
}

func (s *Server) domain(req *http.Request) string {
	if d := req.URL.Query().Get("domain"); d != "" {
		return d
	}
	return s.Domain
}

func (s *Server) getResources(res http.ResponseWriter, req *http.Request) {
	if s.HAL == nil {
		respond(res, errors.New("hal not attached"), http.StatusServiceUnavailable)
		return
	}
	respond(res, s.HAL.Usage(), http.StatusOK)
}

// getOutput reads the output's retained info, value and status.
func (s *Server) getOutput(res http.ResponseWriter, req *http.Request) {
	name := httprouter.ParamsFromContext(req.Context()).ByName("name")
	domain := s.domain(req)

	info, ok := s.retained(hal.InfoTopic(domain, kindPWM, name))
	if !ok {
		respond(res, fmt.Errorf("no output %s/%s", domain, name), http.StatusNotFound)
		return
	}
	view := outputView{Name: name, Domain: domain}
	if i, ok := info.(types.Info); ok {
		view.Info = i.Detail
	}
	if v, ok := s.retained(hal.ValueTopic(domain, kindPWM, name)); ok {
		if pv, ok := v.(types.PWMValue); ok {
			view.Level = &pv.Level
		}
	}
	if st, ok := s.retained(hal.StatusTopic(domain, kindPWM, name)); ok {
		if cs, ok := st.(types.CapabilityStatus); ok {
			view.Status = &cs
		}
	}
	respond(res, view, http.StatusOK)
}

func (s *Server) putDuty(res http.ResponseWriter, req *http.Request) {
	var body types.PWMSet
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respond(res, err, http.StatusUnprocessableEntity)
		return
	}
	s.control(res, req, "set", body)
}

func (s *Server) postRamp(res http.ResponseWriter, req *http.Request) {
	var body types.PWMRamp
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respond(res, err, http.StatusUnprocessableEntity)
		return
	}
	s.control(res, req, "ramp", body)
}

func (s *Server) postStop(res http.ResponseWriter, req *http.Request) {
	s.control(res, req, "stop_ramp", nil)
}

// control sends one request over the bus and waits for the HAL's reply.
func (s *Server) control(res http.ResponseWriter, req *http.Request, verb string, payload any) {
	name := httprouter.ParamsFromContext(req.Context()).ByName("name")
	domain := s.domain(req)
	log := s.Logger.WithField("output", domain+"/"+name).WithField("verb", verb)

	ctx, cancel := context.WithTimeout(req.Context(), s.Timeout)
	defer cancel()

	reply, err := s.Conn.RequestWait(ctx, s.Conn.NewMessage(hal.ControlTopic(domain, kindPWM, name, verb), payload, false))
	if err != nil {
		log.WithError(err).Warn("control timed out")
		respond(res, err, http.StatusGatewayTimeout)
		return
	}

	switch r := reply.Payload.(type) {
	case types.OKReply:
		log.Debug("control ok")
		respond(res, nil, http.StatusNoContent)
	case types.ErrorReply:
		log.WithField("code", r.Error).Info("control rejected")
		respond(res, errcode.Code(r.Error), statusFor(errcode.Code(r.Error)))
	default:
		respond(res, fmt.Errorf("unexpected reply %T", reply.Payload), http.StatusBadGateway)
	}
}

// retained returns the retained payload on topic, if any. Retained
// messages are delivered during Subscribe, so no wait is needed.
func (s *Server) retained(topic bus.Topic) (any, bool) {
	sub := s.Conn.Subscribe(topic)
	defer s.Conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		if m == nil || m.Payload == nil {
			return nil, false
		}
		return m.Payload, true
	default:
		return nil, false
	}
}
