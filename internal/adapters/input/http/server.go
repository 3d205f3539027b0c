package http

import (
	"context"
	"encoding/json"
	"fmt"
	"lighting-bridge/internal/domain/model"
	"lighting-bridge/internal/ports"
	"net/http"
	"strings"
	"time"

	"github.com/amimof/huego"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LightID is the only light the bridge exposes.
const LightID = "1"

// Hue API error types
const (
	errUnauthorized     = 1
	errInvalidJSON      = 2
	errResourceNotFound = 3
	errMethodNotAllowed = 4
	errInvalidValue     = 7
)

type BridgeInfo struct {
	Name string
	UUID uuid.UUID
	IP   string
	Port int
}

// Server exposes the bridge light through a subset of the Hue v1 REST API.
type Server struct {
	lighting ports.LightingPort
	events   *EventHub
	info     BridgeInfo
	logger   *zap.Logger
	server   *http.Server
}

func NewServer(lighting ports.LightingPort, events *EventHub, info BridgeInfo, logger *zap.Logger) *Server {
	return &Server{
		lighting: lighting,
		events:   events,
		info:     info,
		logger:   logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/description.xml", s.handleDescription)
	mux.HandleFunc("/api", s.handleAPI)
	mux.HandleFunc("/api/", s.handleAPI)
	if s.events != nil {
		mux.Handle("/events", s.events)
	}
	return mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8" ?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
<specVersion>
<major>1</major>
<minor>0</minor>
</specVersion>
<URLBase>http://%s:%d/</URLBase>
<device>
<deviceType>urn:schemas-upnp-org:device:Basic:1</deviceType>
<friendlyName>%s (%s)</friendlyName>
<manufacturer>devicectl</manufacturer>
<modelDescription>devicectl lighting bridge</modelDescription>
<modelName>devicectl bridge</modelName>
<serialNumber>%s</serialNumber>
<UDN>uuid:%s</UDN>
</device>
</root>`, s.info.IP, s.info.Port, s.info.Name, s.info.IP, s.serial(), s.info.UUID)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if path == "" || path == "/" {
		if r.Method == http.MethodPost {
			s.handleRegister(w, r)
			return
		}
		s.writeError(w, http.StatusForbidden, errUnauthorized, "/", "unauthorized user")
		return
	}

	subPath := parts[1:]
	if len(subPath) == 0 {
		s.handleFullState(w, r)
		return
	}

	if subPath[0] != "lights" {
		s.writeError(w, http.StatusNotFound, errResourceNotFound, "/"+strings.Join(subPath, "/"), "resource not available")
		return
	}

	switch {
	case len(subPath) == 1:
		s.handleGetLights(w, r)
	case subPath[1] != LightID:
		addr := "/lights/" + subPath[1]
		s.writeError(w, http.StatusNotFound, errResourceNotFound, addr, fmt.Sprintf("resource, %s, not available", addr))
	case len(subPath) == 2:
		s.handleGetLight(w, r)
	case len(subPath) == 3 && subPath[2] == "state":
		s.handleSetLightState(w, r)
	default:
		s.writeError(w, http.StatusNotFound, errResourceNotFound, "/"+strings.Join(subPath, "/"), "resource not available")
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	username := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.logger.Info("Registered API user", zap.String("username", username))
	s.writeJSON(w, []map[string]interface{}{
		{"success": map[string]string{"username": username}},
	})
}

func (s *Server) handleFullState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"lights": map[string]*huego.Light{LightID: s.light()},
		"groups": map[string]interface{}{},
		"config": map[string]interface{}{
			"name":       s.info.Name,
			"apiversion": "1.11.0",
			"bridgeid":   s.serial(),
			"modelid":    "BSB001",
		},
	})
}

func (s *Server) handleGetLights(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]*huego.Light{LightID: s.light()})
}

func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.light())
}

func (s *Server) handleSetLightState(w http.ResponseWriter, r *http.Request) {
	addr := "/lights/" + LightID + "/state"
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed, addr, "method, "+r.Method+", not available for resource, "+addr)
		return
	}

	var update map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidJSON, addr, "body contains invalid json")
		return
	}

	on, hasOn := update["on"]
	bri, hasBri := update["bri"]

	var onValue bool
	if hasOn {
		v, ok := on.(bool)
		if !ok {
			s.writeError(w, http.StatusBadRequest, errInvalidValue, addr+"/on", "invalid value for parameter, on")
			return
		}
		onValue = v
	}
	var briValue model.Level
	if hasBri {
		v, ok := bri.(float64)
		if !ok || v < 1 || v > 254 {
			s.writeError(w, http.StatusBadRequest, errInvalidValue, addr+"/bri", "invalid value for parameter, bri")
			return
		}
		briValue = model.Level(v)
	}

	resp := []map[string]interface{}{}
	if hasOn {
		action := model.ActionTurnOff
		if onValue {
			action = model.ActionTurnOn
		}
		initiated := s.lighting.InitiateAction(action)
		s.logger.Debug("Light power requested", zap.Bool("on", onValue), zap.Bool("initiated", initiated))
		resp = append(resp, success(addr+"/on", onValue))
	}
	if hasBri {
		s.lighting.SetLevel(briValue)
		resp = append(resp, success(addr+"/bri", briValue))
	}

	s.writeJSON(w, resp)
}

func (s *Server) light() *huego.Light {
	return &huego.Light{
		Name:             s.info.Name,
		Type:             "Dimmable light",
		State:            s.lighting.State(),
		ModelID:          "LWB010",
		UniqueID:         s.serial() + "-" + LightID,
		ManufacturerName: "devicectl",
	}
}

func (s *Server) serial() string {
	id := strings.ReplaceAll(s.info.UUID.String(), "-", "")
	return strings.ToUpper(id[len(id)-12:])
}

func success(key string, value interface{}) map[string]interface{} {
	return map[string]interface{}{"success": map[string]interface{}{key: value}}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status, errType int, address, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode([]map[string]interface{}{
		{"error": map[string]interface{}{
			"type":        errType,
			"address":     address,
			"description": description,
		}},
	})
}
