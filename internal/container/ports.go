// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	PortProtocolTCP PortProtocol = "tcp"
	PortProtocolUDP PortProtocol = "udp"
)

var (
	// ErrInvalidPortMapping is wrapped by PortMapping validation failures.
	ErrInvalidPortMapping = errors.New("invalid port mapping")
)

type (
	// PortProtocol is a transport protocol. The zero value means tcp.
	PortProtocol string

	// PortMapping publishes ContainerPort on HostIP:HostPort.
	PortMapping struct {
		HostIP        string
		HostPort      uint16
		ContainerPort uint16
		Protocol      PortProtocol
	}
)

// Validate reports every invalid field.
func (p PortMapping) Validate() error {
	var errs []error
	if p.HostPort == 0 {
		errs = append(errs, errors.New("host port must be greater than zero"))
	}
	if p.ContainerPort == 0 {
		errs = append(errs, errors.New("container port must be greater than zero"))
	}
	switch p.Protocol {
	case "", PortProtocolTCP, PortProtocolUDP:
	default:
		errs = append(errs, fmt.Errorf("protocol %q (valid: tcp, udp)", p.Protocol))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %s: %w", ErrInvalidPortMapping, p, errors.Join(errs...))
	}
	return nil
}

// String returns the -p flag value: [hostIP:]host:container[/proto].
func (p PortMapping) String() string {
	var b strings.Builder
	if p.HostIP != "" {
		b.WriteString(p.HostIP)
		b.WriteByte(':')
	}
	fmt.Fprintf(&b, "%d:%d", p.HostPort, p.ContainerPort)
	if p.Protocol != "" && p.Protocol != PortProtocolTCP {
		b.WriteByte('/')
		b.WriteString(string(p.Protocol))
	}
	return b.String()
}

// ParsePortMapping parses "[hostIP:]hostPort:containerPort[/protocol]".
func ParsePortMapping(s string) (PortMapping, error) {
	var m PortMapping

	spec, proto, hasProto := strings.Cut(s, "/")
	if hasProto {
		m.Protocol = PortProtocol(proto)
	}

	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 2:
	case 3:
		m.HostIP = parts[0]
		parts = parts[1:]
	default:
		return m, fmt.Errorf("%w %q: expected [hostIP:]hostPort:containerPort", ErrInvalidPortMapping, s)
	}

	host, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return m, fmt.Errorf("%w: host port %q: %w", ErrInvalidPortMapping, parts[0], err)
	}
	ctr, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return m, fmt.Errorf("%w: container port %q: %w", ErrInvalidPortMapping, parts[1], err)
	}
	m.HostPort, m.ContainerPort = uint16(host), uint16(ctr)

	return m, m.Validate()
}
