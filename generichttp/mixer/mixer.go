// Package mixer provides an HTTP control surface over a sabre32 Arbiter:
// mixer controls, per-path mute and volume, stream state, hw params and
// register dumps
package mixer

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi"

	"github.com/boticaudio/sabre/clock"
	"github.com/boticaudio/sabre/generichttp"
	"github.com/boticaudio/sabre/regmap"
	"github.com/boticaudio/sabre/sabre32"
	"github.com/boticaudio/sabre/server"
)

// HWParams is the body of POST /hw-params
type HWParams struct {
	Rate     int    `json:"rate"`
	Format   string `json:"format"`
	Channels int    `json:"channels"`
}

// HTTPMixer holds an arbiter and the routes that drive it
type HTTPMixer struct {
	Arbiter *sabre32.Arbiter

	RouteTable generichttp.RouteTable
}

// NewHTTPMixer returns a table of routes over a
func NewHTTPMixer(a *sabre32.Arbiter) HTTPMixer {
	m := HTTPMixer{Arbiter: a, RouteTable: generichttp.RouteTable{}}
	rt := m.RouteTable
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/controls"}] = m.controls
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/control/{name}"}] = m.getControl
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/control/{name}"}] = m.setControl
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/path/{path}/mute"}] = m.getMute
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/path/{path}/mute"}] = m.setMute
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/path/{path}/volume"}] = m.getVolume
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/path/{path}/volume"}] = m.setVolume
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/stream"}] = generichttp.GetString(func() (string, error) {
		return a.ActivePath().String(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/stream"}] = generichttp.SetBool(func(active bool) error {
		p := sabre32.ExternalPassthrough
		if active {
			p = sabre32.StreamDriven
		}
		return classify(a.EnterPath(p))
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/hw-params"}] = m.hwParams
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/dai-format"}] = generichttp.SetString(func(s string) error {
		d, err := sabre32.ParseDAIFormat(s)
		if err != nil {
			return classify(err)
		}
		return classify(a.SetDAIFormat(d))
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/clock"}] = generichttp.GetJSON(func() (interface{}, error) {
		return a.ClockConfig(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/state"}] = generichttp.GetJSON(func() (interface{}, error) {
		return a.State(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/registers"}] = generichttp.GetJSON(func() (interface{}, error) {
		return a.Dump(), nil
	})
	return m
}

// RT satisfies generichttp.HTTPer
func (m HTTPMixer) RT() generichttp.RouteTable {
	return m.RouteTable
}

// Status maps an error from the arbiter to the HTTP status it is reported with
func Status(err error) int {
	switch {
	case errors.Is(err, sabre32.ErrUnknownControl), errors.Is(err, sabre32.ErrUnknownPath):
		return http.StatusNotFound
	case errors.Is(err, sabre32.ErrInvalidFormat),
		errors.Is(err, sabre32.ErrOutOfRange),
		errors.Is(err, clock.ErrUnsupportedRate),
		errors.Is(err, clock.ErrUnsupportedRatio):
		return http.StatusBadRequest
	case errors.Is(err, regmap.ErrBus):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	return server.StatusError{Code: Status(err), Err: err}
}

func param(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (m HTTPMixer) controls(w http.ResponseWriter, r *http.Request) {
	server.ReplyJSON(w, m.Arbiter.Controls())
}

func (m HTTPMixer) getControl(w http.ResponseWriter, r *http.Request) {
	name := param(r, "name")
	generichttp.GetInt(func() (int, error) {
		v, err := m.Arbiter.Get(name)
		return v, classify(err)
	})(w, r)
}

func (m HTTPMixer) setControl(w http.ResponseWriter, r *http.Request) {
	name := param(r, "name")
	generichttp.SetInt(func(v int) error {
		return classify(m.Arbiter.Set(name, v))
	})(w, r)
}

// path resolves the {path} parameter, replying 404 when it is unknown
func (m HTTPMixer) path(w http.ResponseWriter, r *http.Request) (sabre32.Path, bool) {
	p, err := sabre32.ParsePath(param(r, "path"))
	if err != nil {
		server.ReplyError(w, classify(err))
		return p, false
	}
	return p, true
}

func (m HTTPMixer) getMute(w http.ResponseWriter, r *http.Request) {
	p, ok := m.path(w, r)
	if !ok {
		return
	}
	generichttp.GetBool(func() (bool, error) {
		return m.Arbiter.Mute(p), nil
	})(w, r)
}

func (m HTTPMixer) setMute(w http.ResponseWriter, r *http.Request) {
	p, ok := m.path(w, r)
	if !ok {
		return
	}
	generichttp.SetBool(func(mute bool) error {
		return classify(m.Arbiter.SetMute(p, mute))
	})(w, r)
}

func (m HTTPMixer) getVolume(w http.ResponseWriter, r *http.Request) {
	p, ok := m.path(w, r)
	if !ok {
		return
	}
	generichttp.GetInt(func() (int, error) {
		v, err := m.Arbiter.Volume(p)
		return v, classify(err)
	})(w, r)
}

func (m HTTPMixer) setVolume(w http.ResponseWriter, r *http.Request) {
	p, ok := m.path(w, r)
	if !ok {
		return
	}
	generichttp.SetInt(func(v int) error {
		return classify(m.Arbiter.SetVolume(p, v))
	})(w, r)
}

func (m HTTPMixer) hwParams(w http.ResponseWriter, r *http.Request) {
	var input HWParams
	err := json.NewDecoder(r.Body).Decode(&input)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := sabre32.ParseFormat(input.Format)
	if err != nil {
		server.ReplyError(w, classify(err))
		return
	}
	cfg, err := m.Arbiter.SetFormat(input.Rate, f, input.Channels)
	if err != nil {
		server.ReplyError(w, classify(err))
		return
	}
	server.ReplyJSON(w, cfg)
}
