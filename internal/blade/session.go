// internal/blade/session.go
package blade

import (
	"fmt"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// Initialize identifies the blade and, for compute blades, logs on.
// Storage blades are ready as soon as they are identified.
func (c *Client) Initialize() bool {
	c.xmu.Lock()
	defer c.xmu.Unlock()
	return c.initializeLocked(transport.PriorityHigh)
}

func (c *Client) initializeLocked(pri transport.Priority) bool {
	c.fire(evConnect)

	var guid ipmi.GetSystemGUIDResponse
	c.exchange(ipmi.GetSystemGUIDRequest{}, &guid, pri)
	if !guid.OK() {
		c.log.Warn().Stringer("status", guid.Status).Msg("identity query failed")
		c.fire(evReset)
		return false
	}
	c.setIdentity(guid.GUID)

	var caps ipmi.GetChannelAuthCapabilitiesResponse
	c.exchange(ipmi.GetChannelAuthCapabilitiesRequest{Privilege: ipmi.PrivilegeAdmin}, &caps, pri)
	if !caps.OK() {
		c.log.Warn().Stringer("status", caps.Status).Msg("capability query failed")
		c.setClass(ipmi.ClassUnknown)
		c.fire(evInvalidate)
		return false
	}

	class := caps.Class()
	c.setClass(class)

	switch class {
	case ipmi.ClassCompute:
		return c.logonLocked(pri)
	case ipmi.ClassStorage:
		c.fire(evReady)
		return true
	default:
		c.log.Warn().Uint8("oem_aux", caps.OEMAux).Msg("unknown blade class")
		c.fire(evInvalidate)
		return false
	}
}

// Logon establishes an administrator session.
func (c *Client) Logon(pri transport.Priority) bool {
	c.xmu.Lock()
	defer c.xmu.Unlock()
	return c.logonLocked(pri)
}

// logonLocked never panics; any failure is a false result.
func (c *Client) logonLocked(pri transport.Priority) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Err(fmt.Errorf("%v", r)).Msg("logon panicked")
			c.fire(evReset)
			ok = false
		}
		c.obs.ObserveLogon(c.id, ok)
	}()

	creds := c.credentials()

	c.fire(evConnect)
	c.fire(evChallenge)

	var ch ipmi.GetSessionChallengeResponse
	c.exchange(ipmi.GetSessionChallengeRequest{AuthType: creds.AuthType, Username: creds.Username}, &ch, pri)
	if !ch.OK() {
		c.log.Warn().Stringer("status", ch.Status).Msg("session challenge failed")
		c.fire(evReset)
		return false
	}
	c.fire(evChallenged)

	code := ipmi.AuthCode(creds.AuthType, creds.Password, ch.TemporarySessionID, ch.Challenge)

	var act ipmi.ActivateSessionResponse
	c.exchange(ipmi.ActivateSessionRequest{
		AuthType:     creds.AuthType,
		MaxPrivilege: ipmi.PrivilegeAdmin,
		AuthCode:     code,
		OutboundSeq:  1,
	}, &act, pri)
	if !act.OK() {
		c.log.Warn().Stringer("status", act.Status).Msg("session activation failed")
		return false
	}

	c.setSession(act.SessionID)
	c.seq.resetSync()
	c.fire(evActivate)

	var priv ipmi.SetSessionPrivilegeLevelResponse
	c.exchange(ipmi.SetSessionPrivilegeLevelRequest{Privilege: ipmi.PrivilegeAdmin}, &priv, pri)
	if !priv.OK() {
		c.log.Warn().Stringer("status", priv.Status).Msg("privilege escalation failed")
		return false
	}

	c.log.Info().Uint32("session", act.SessionID).Msg("session established")
	return true
}

// Logoff closes the active session. The session id is cleared either way.
func (c *Client) Logoff() {
	c.xmu.Lock()
	defer c.xmu.Unlock()

	if sid := c.SessionID(); sid != 0 {
		var resp ipmi.EmptyResponse
		c.exchange(ipmi.CloseSessionRequest{SessionID: sid}, &resp, transport.PriorityHigh)
		if !resp.OK() {
			c.log.Debug().Stringer("status", resp.Status).Msg("close session failed")
		}
	}
	c.setSession(0)
	c.fire(evReset)
}

func (c *Client) credentials() Credentials {
	if c.creds == nil {
		c.log.Warn().Msg("no credentials configured, using empty username and password")
		return Credentials{}
	}
	return *c.creds
}
