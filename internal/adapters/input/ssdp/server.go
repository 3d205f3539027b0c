package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	multicastAddr = "239.255.255.250:1900"
	deviceType    = "urn:schemas-upnp-org:device:basic:1"
)

// Server answers SSDP discovery so voice assistants find the bridge.
type Server struct {
	ip     string
	port   int
	id     uuid.UUID
	logger *zap.Logger
}

func NewServer(ip string, port int, id uuid.UUID, logger *zap.Logger) *Server {
	return &Server{ip: ip, port: port, id: id, logger: logger}
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return err
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.logger.Info("SSDP responder listening", zap.String("addr", multicastAddr))
	buf := make([]byte, 1024)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Debug("SSDP read failed", zap.Error(err))
			continue
		}

		if IsSearch(string(buf[:n])) {
			s.respond(src)
		}
	}
}

// IsSearch reports whether msg is an M-SEARCH the bridge should answer.
func IsSearch(msg string) bool {
	if !strings.HasPrefix(msg, "M-SEARCH") {
		return false
	}
	lower := strings.ToLower(msg)
	// Echo devices search for the basic device type or the root device
	return strings.Contains(lower, deviceType) ||
		strings.Contains(lower, "upnp:rootdevice") ||
		strings.Contains(lower, "ssdp:all")
}

// Response builds the discovery reply pointing at description.xml.
func (s *Server) Response() string {
	return fmt.Sprintf("HTTP/1.1 200 OK\r\n"+
		"CACHE-CONTROL: max-age=100\r\n"+
		"EXT:\r\n"+
		"LOCATION: http://%s:%d/description.xml\r\n"+
		"SERVER: Linux/3.14.0 UPnP/1.0 IpBridge/1.17.0\r\n"+
		"hue-bridgeid: %s\r\n"+
		"ST: %s\r\n"+
		"USN: uuid:%s::%s\r\n\r\n",
		s.ip, s.port, bridgeID(s.id), deviceType, s.id, deviceType)
}

func (s *Server) respond(dest *net.UDPAddr) {
	conn, err := net.DialUDP("udp4", nil, dest)
	if err != nil {
		s.logger.Debug("SSDP reply dial failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := conn.Write([]byte(s.Response())); err != nil {
		s.logger.Debug("SSDP reply failed", zap.Error(err))
		return
	}
	s.logger.Debug("Answered SSDP search", zap.String("to", dest.String()))
}

// bridgeID matches the serial the HTTP description reports.
func bridgeID(id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return strings.ToUpper(hex[len(hex)-12:])
}
