//
//  internal/requestinfo/origin.go
//
//  Best-effort submission origin for editor requests: client IP, GeoLite2
//  country and city, and a user-agent fingerprint.  The result is an inert
//  auth.Origin, safe to log or JSON-encode onto claim messages.
//
//  Dependencies
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (MaxMind lookup)
//

package requestinfo

import (
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"

	"github.com/yanizio/uniprofile/internal/auth"
)

//
//  -----------------------------
//  Resolver
//  -----------------------------
//

// Resolver builds origins.  The GeoLite2 handle is optional and safe for
// concurrent reads.
type Resolver struct {
	geo *geoip2.Reader
}

// Open returns a Resolver.  An empty dbPath disables geolocation.
func Open(dbPath string) (*Resolver, error) {
	if dbPath == "" {
		return &Resolver{}, nil
	}
	rd, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Resolver{geo: rd}, nil
}

// Close releases the GeoLite2 handle.
func (r *Resolver) Close() error {
	if r.geo == nil {
		return nil
	}
	return r.geo.Close()
}

// Origin describes where req came from.
func (r *Resolver) Origin(req *http.Request) auth.Origin {
	o := parseUA(req.UserAgent())
	ip := clientIP(req)
	if ip == nil {
		return o
	}
	o.IP = ip.String()
	if r.geo == nil {
		return o
	}
	if rec, err := r.geo.City(ip); err == nil {
		o.Country = rec.Country.IsoCode
		o.City = rec.City.Names["en"]
	}
	return o
}

//
//  -----------------------------
//  Internal helpers
//  -----------------------------
//

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}

// parseUA fills the user-agent half of an Origin.
func parseUA(raw string) auth.Origin {
	if raw == "" {
		return auth.Origin{}
	}
	u := uasurfer.Parse(raw)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}
	return auth.Origin{
		Browser: strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		OS:      osName,
		Device:  deviceName(u.DeviceType),
		Bot:     u.IsBot(),
	}
}

func deviceName(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DevicePhone, uasurfer.DeviceWearable:
		return "Mobile"
	default:
		return "Other"
	}
}
