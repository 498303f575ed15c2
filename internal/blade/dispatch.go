// internal/blade/dispatch.go
package blade

import (
	"fmt"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/ipmi/frame"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// attempt bounds session-loss recovery to one cycle per call.
type attempt int

const (
	attemptFirst attempt = iota
	attemptRetried
)

// Execute sends req and fills resp, recovering once from session loss.
// The outcome is always on resp; it never panics.
func (c *Client) Execute(req ipmi.Request, resp ipmi.Response, pri transport.Priority) {
	c.xmu.Lock()
	defer c.xmu.Unlock()
	c.dispatchLocked(req, resp, pri, true)
}

func (c *Client) dispatchLocked(req ipmi.Request, resp ipmi.Response, pri transport.Priority, allowRetry bool) {
	for at := attemptFirst; ; at++ {
		switch at {
		case attemptFirst:
			c.exchange(req, resp, pri)
			if !allowRetry || !resp.ResponseStatus().SessionLost() {
				return
			}
		case attemptRetried:
			c.recoverLocked(req, resp, pri, *resp.ResponseStatus())
			return
		}
	}
}

// recoverLocked re-establishes the blade after a session-loss signature and
// replays req. original is restored when the blade cannot be classified.
func (c *Client) recoverLocked(req ipmi.Request, resp ipmi.Response, pri transport.Priority, original ipmi.Status) {
	c.bumpErrors()
	c.obs.ObserveRetry(c.id)

	c.log.Debug().
		Uint8("netfn", byte(req.NetFn())).
		Uint8("cmd", req.Command()).
		Stringer("status", original).
		Msg("session lost, recovering")

	var caps ipmi.GetChannelAuthCapabilitiesResponse
	c.exchange(ipmi.GetChannelAuthCapabilitiesRequest{Privilege: ipmi.PrivilegeAdmin}, &caps, pri)

	class := caps.Class()
	if !caps.OK() || class == ipmi.ClassUnknown {
		*resp.ResponseStatus() = original
		return
	}
	c.setClass(class)

	c.exchange(req, resp, pri)
	if !resp.ResponseStatus().SessionLost() || class != ipmi.ClassCompute {
		return
	}

	c.fire(evConnect)
	if c.logonLocked(pri) {
		c.exchange(req, resp, pri)
	}
}

// exchange performs exactly one request/response on the transport.
func (c *Client) exchange(req ipmi.Request, resp ipmi.Response, pri transport.Priority) {
	st := resp.ResponseStatus()
	*st = ipmi.Status{}

	defer func() {
		c.obs.ObserveCommand(c.id, req.NetFn(), req.Command(), *st)
	}()

	if ipmi.SessionScoped(req) && c.needsSession() {
		st.Code = ipmi.CCInsufficientPrivilege
		return
	}

	seq := c.seq.nextSync()
	msg := ipmi.BuildRequest(ipmi.BMCAddress, ipmi.RequesterSync, req.NetFn(), req.Command(), seq, req.Data())

	raw, err := c.tr.SendReceive(pri, c.dt, c.id, frame.Encode(msg))
	if err != nil {
		c.log.Error().Err(err).Uint8("cmd", req.Command()).Msg("transport failure")
		st.Transport = ipmi.TransportMalformedPacket
		st.Code = ipmi.CCUnspecified
		return
	}

	c.decode(req, resp, seq, msg, raw)
	if st.OK() {
		c.resetErrors()
	}
}

// decode fills resp from a prefixed transport response. Panics raised by a
// response type are converted to CCResponseNotProvided.
func (c *Client) decode(req ipmi.Request, resp ipmi.Response, seq byte, msg, raw []byte) {
	st := resp.ResponseStatus()

	defer func() {
		if r := recover(); r != nil {
			c.dump("response construction panicked", fmt.Errorf("%v", r), msg, raw)
			*st = ipmi.Status{Code: ipmi.CCResponseNotProvided}
		}
	}()

	if len(raw) < transport.PrefixLen {
		c.dump("transport response too short", nil, msg, raw)
		st.Transport = ipmi.TransportMalformedPacket
		st.Code = ipmi.CCResponseNotProvided
		return
	}

	if code := ipmi.TransportCode(raw[0]); code != ipmi.TransportSuccess {
		st.Transport = code
		if code.IsTimeout() {
			st.Code = ipmi.CCTimeout
		} else {
			st.Code = ipmi.CCUnspecified
		}
		return
	}

	payload := raw[transport.PrefixLen:]
	if !ipmi.PlausibleResponse(payload) {
		c.dump("implausible response header", nil, msg, raw)
		st.Transport = ipmi.TransportMalformedPacket
		st.Code = ipmi.CCResponseNotProvided
		return
	}

	m := frame.Decode(payload)
	if err := frame.Verify(m); err != nil {
		c.dump("response checksum", err, msg, raw)
		st.Code = ipmi.CCIllegalParameter
		return
	}

	h, data, err := ipmi.ParseResponse(m)
	if err != nil {
		c.dump("response header", err, msg, raw)
		st.Code = ipmi.CCResponseNotProvided
		return
	}
	if h.RqAddr != ipmi.RequesterSync || h.Seq != seq || h.Cmd != req.Command() {
		// stale or foreign response on the shared line
		c.log.Debug().
			Uint8("want_seq", seq).
			Uint8("got_seq", h.Seq).
			Uint8("rq_addr", h.RqAddr).
			Msg("response does not match request")
		st.Code = ipmi.CCResponseNotProvided
		return
	}

	st.Code = h.Code
	if h.Code != ipmi.CCSuccess {
		return
	}

	if err := resp.Unmarshal(data); err != nil {
		c.dump("response decode", err, msg, raw)
		st.Code = ipmi.CCResponseNotProvided
	}
}

func (c *Client) dump(what string, err error, req, resp []byte) {
	c.log.Error().
		Err(err).
		Hex("request", req).
		Hex("response", resp).
		Msg(what)
}

// ------------------------------------------------------------
// Broadcast
// ------------------------------------------------------------

// Broadcast sends req once on the async sequence range and returns the
// (sub-address, completion code) pairs of the reply.
func (c *Client) Broadcast(req ipmi.Request, pri transport.Priority) ([]ipmi.BroadcastEntry, ipmi.Status) {
	c.xmu.Lock()
	defer c.xmu.Unlock()

	seq := c.seq.nextAsync()
	msg := ipmi.BuildRequest(ipmi.BMCAddress, ipmi.RequesterAsync, req.NetFn(), req.Command(), seq, req.Data())

	raw, err := c.tr.SendReceive(pri, c.dt, c.id, frame.Encode(msg))
	if err != nil {
		c.log.Error().Err(err).Msg("broadcast transport failure")
		return nil, ipmi.Status{Transport: ipmi.TransportMalformedPacket, Code: ipmi.CCUnspecified}
	}
	if len(raw) < transport.PrefixLen {
		return nil, ipmi.Status{Transport: ipmi.TransportMalformedPacket, Code: ipmi.CCResponseNotProvided}
	}
	if code := ipmi.TransportCode(raw[0]); code != ipmi.TransportSuccess {
		cc := ipmi.CCUnspecified
		if code.IsTimeout() {
			cc = ipmi.CCTimeout
		}
		return nil, ipmi.Status{Transport: code, Code: cc}
	}

	m := frame.Decode(raw[transport.PrefixLen:])
	if err := frame.Verify(m); err != nil {
		c.dump("broadcast checksum", err, msg, raw)
		return nil, ipmi.Status{Code: ipmi.CCIllegalParameter}
	}

	got, entries, err := ipmi.ParseBroadcast(m)
	if err != nil || got != seq {
		c.dump("broadcast response", err, msg, raw)
		return nil, ipmi.Status{Code: ipmi.CCResponseNotProvided}
	}
	return entries, ipmi.Status{}
}
