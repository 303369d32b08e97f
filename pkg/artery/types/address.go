package types

import "fmt"

// UID identifies one process incarnation. Minted once per process start,
// regenerated on restart; never coerced through a narrower integer type.
type UID = uint64

// Address is where a remote artery endpoint can be reached.
type Address struct {
	Protocol string
	System   string
	Host     string
	Port     uint16
}

func (a Address) String() string {
	return fmt.Sprintf("%s://%s@%s:%d", a.Protocol, a.System, a.Host, a.Port)
}

// UniqueAddress pins an Address to one specific process incarnation.
type UniqueAddress struct {
	Address Address
	UID     UID
}

func (u UniqueAddress) String() string {
	return fmt.Sprintf("%s#%d", u.Address.String(), u.UID)
}
