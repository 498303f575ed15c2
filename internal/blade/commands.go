// internal/blade/commands.go
package blade

import (
	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

// Typed command wrappers. Each is one logical operation under the exchange
// lock with session-loss recovery.

func (c *Client) GetDeviceID(pri transport.Priority) ipmi.GetDeviceIDResponse {
	var r ipmi.GetDeviceIDResponse
	c.Execute(ipmi.GetDeviceIDRequest{}, &r, pri)
	return r
}

func (c *Client) SystemGUID(pri transport.Priority) ipmi.GetSystemGUIDResponse {
	var r ipmi.GetSystemGUIDResponse
	c.Execute(ipmi.GetSystemGUIDRequest{}, &r, pri)
	return r
}

func (c *Client) ChannelAuthCapabilities(pri transport.Priority) ipmi.GetChannelAuthCapabilitiesResponse {
	var r ipmi.GetChannelAuthCapabilitiesResponse
	c.Execute(ipmi.GetChannelAuthCapabilitiesRequest{Privilege: ipmi.PrivilegeAdmin}, &r, pri)
	return r
}

func (c *Client) ChassisStatus(pri transport.Priority) ipmi.GetChassisStatusResponse {
	var r ipmi.GetChassisStatusResponse
	c.Execute(ipmi.GetChassisStatusRequest{}, &r, pri)
	return r
}

func (c *Client) ChassisControl(action ipmi.ControlAction, pri transport.Priority) ipmi.Status {
	var r ipmi.EmptyResponse
	c.Execute(ipmi.ChassisControlRequest{Action: action}, &r, pri)
	return r.Status
}

func (c *Client) SELInfo(pri transport.Priority) ipmi.GetSELInfoResponse {
	var r ipmi.GetSELInfoResponse
	c.Execute(ipmi.GetSELInfoRequest{}, &r, pri)
	return r
}

// ---- DCMI ----

func (c *Client) PowerReading(pri transport.Priority) ipmi.GetPowerReadingResponse {
	var r ipmi.GetPowerReadingResponse
	c.Execute(ipmi.GetPowerReadingRequest{}, &r, pri)
	return r
}

// PowerLimit reads the active limit. CCNoPowerLimit means none is set.
func (c *Client) PowerLimit(pri transport.Priority) ipmi.GetPowerLimitResponse {
	var r ipmi.GetPowerLimitResponse
	c.Execute(ipmi.GetPowerLimitRequest{}, &r, pri)
	return r
}

func (c *Client) SetPowerLimit(req ipmi.SetPowerLimitRequest, pri transport.Priority) ipmi.Status {
	var r ipmi.DCMIResponse
	c.Execute(req, &r, pri)
	return r.Status
}

func (c *Client) ActivatePowerLimit(activate bool, pri transport.Priority) ipmi.Status {
	var r ipmi.DCMIResponse
	c.Execute(ipmi.ActivatePowerLimitRequest{Activate: activate}, &r, pri)
	return r.Status
}

// ---- bridging ----

// Bridge sends inner to target on channel through Send Message and fills
// resp from the bridged response.
func (c *Client) Bridge(channel, target byte, inner ipmi.Request, resp ipmi.Response, pri transport.Priority) {
	c.xmu.Lock()
	defer c.xmu.Unlock()
	c.bridgeLocked(channel, target, inner, resp, pri)
}

func (c *Client) bridgeLocked(channel, target byte, inner ipmi.Request, resp ipmi.Response, pri transport.Priority) {
	var sm ipmi.SendMessageResponse
	c.dispatchLocked(ipmi.SendMessageRequest{
		Channel: channel,
		Target:  target,
		Seq:     c.seq.nextSync(),
		Inner:   inner,
	}, &sm, pri, true)

	if err := sm.Into(resp); err != nil {
		c.log.Error().Err(err).Uint8("target", target).Uint8("cmd", inner.Command()).Msg("bridged response decode")
		*resp.ResponseStatus() = ipmi.Status{Code: ipmi.CCResponseNotProvided}
	}
}

// ---- node manager ----

func (c *Client) MEDeviceID(pri transport.Priority) ipmi.GetDeviceIDResponse {
	var r ipmi.GetDeviceIDResponse
	c.Bridge(ipmi.ChannelME, ipmi.MEAddress, ipmi.GetDeviceIDRequest{}, &r, pri)
	return r
}

func (c *Client) NMVersion(pri transport.Priority) ipmi.GetNMVersionResponse {
	var r ipmi.GetNMVersionResponse
	c.Bridge(ipmi.ChannelME, ipmi.MEAddress, ipmi.GetNMVersionRequest{}, &r, pri)
	return r
}

// ---- FRU ----

// FRU reads the whole inventory image of fruID in chunks and parses it.
func (c *Client) FRU(fruID byte, pri transport.Priority) (ipmi.FRUInventory, ipmi.Status, error) {
	c.xmu.Lock()
	defer c.xmu.Unlock()
	return c.fruLocked(fruID, pri)
}

func (c *Client) fruLocked(fruID byte, pri transport.Priority) (ipmi.FRUInventory, ipmi.Status, error) {
	var info ipmi.GetFRUInventoryAreaInfoResponse
	c.dispatchLocked(ipmi.GetFRUInventoryAreaInfoRequest{DeviceID: fruID}, &info, pri, true)
	if !info.OK() {
		return ipmi.FRUInventory{}, info.Status, nil
	}

	image := make([]byte, 0, info.Size)
	for off := 0; off < int(info.Size); {
		n := ipmi.FRUReadChunk
		if rest := int(info.Size) - off; rest < n {
			n = rest
		}
		var rd ipmi.ReadFRUDataResponse
		c.dispatchLocked(ipmi.ReadFRUDataRequest{DeviceID: fruID, Offset: uint16(off), Count: byte(n)}, &rd, pri, true)
		if !rd.OK() {
			return ipmi.FRUInventory{}, rd.Status, nil
		}
		if len(rd.Bytes) == 0 {
			break
		}
		image = append(image, rd.Bytes...)
		off += len(rd.Bytes)
	}

	inv, err := ipmi.ParseFRU(image)
	return inv, ipmi.Status{}, err
}
