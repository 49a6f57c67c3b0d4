package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AddressRange describes which IPv4 candidates to probe: every
// SubnetPrefix.N for N in [StartOctet, EndOctet], on Port.
type AddressRange struct {
	SubnetPrefix string `json:"subnet_prefix" validate:"required"`
	StartOctet   int    `json:"start_octet" validate:"min=1,max=254,ltefield=EndOctet"`
	EndOctet     int    `json:"end_octet" validate:"min=1,max=254"`
	Port         int    `json:"port" validate:"min=1,max=65535"`
}

var validate = validator.New()

// Validate rejects a range before any network activity happens.
func (r AddressRange) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return rangeFieldError(verrs[0])
		}
		return err
	}
	if !validSubnetPrefix(r.SubnetPrefix) {
		return fmt.Errorf("subnet prefix %q must be three dotted octets", r.SubnetPrefix)
	}
	return nil
}

func rangeFieldError(fe validator.FieldError) error {
	switch fe.Field() {
	case "SubnetPrefix":
		return fmt.Errorf("subnet prefix is required")
	case "StartOctet":
		if fe.Tag() == "ltefield" {
			return fmt.Errorf("start octet %v must be <= end octet", fe.Value())
		}
		return fmt.Errorf("start octet %v must be in [1,254]", fe.Value())
	case "EndOctet":
		return fmt.Errorf("end octet %v must be in [1,254]", fe.Value())
	case "Port":
		return fmt.Errorf("port %v must be in [1,65535]", fe.Value())
	default:
		return fmt.Errorf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

func validSubnetPrefix(prefix string) bool {
	parts := strings.Split(prefix, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// Candidate returns the dotted-quad address for one octet of the range.
func (r AddressRange) Candidate(octet int) string {
	return r.SubnetPrefix + "." + strconv.Itoa(octet)
}

// CandidateAddr returns host:port for one octet of the range.
func (r AddressRange) CandidateAddr(octet int) string {
	return net.JoinHostPort(r.Candidate(octet), strconv.Itoa(r.Port))
}

// Size is the number of candidates the range enumerates.
func (r AddressRange) Size() int {
	if r.StartOctet > r.EndOctet {
		return 0
	}
	return r.EndOctet - r.StartOctet + 1
}

func (r AddressRange) String() string {
	return fmt.Sprintf("%s.%d-%d:%d", r.SubnetPrefix, r.StartOctet, r.EndOctet, r.Port)
}
