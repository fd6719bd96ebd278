package schema

// Response is one WIF/EIF response word describing why a field was flagged.
type Response uint32

const (
	RespNotExecuted          Response = 1 << 31
	RespDeviceFailure        Response = 1 << 30
	RespErroneousField       Response = 1 << 29
	RespOutOfRange           Response = 1 << 28
	RespUnsupportedPrecision Response = 1 << 27
	RespValueInvalid         Response = 1 << 26
	RespTimestampProblem     Response = 1 << 25
	RespHazardousPower       Response = 1 << 24
	RespDistortion           Response = 1 << 23
	RespInBandPower          Response = 1 << 22
	RespOutOfBandPower       Response = 1 << 21
	RespCositeInterference   Response = 1 << 20
	RespRegionalInterference Response = 1 << 19

	// RespUserMask covers the user-defined bits 11-0.
	RespUserMask Response = 0xFFF
)

var responseReasons = []struct {
	bit    Response
	reason string
}{
	{RespNotExecuted, "not executed"},
	{RespDeviceFailure, "device failure"},
	{RespErroneousField, "erroneous field"},
	{RespOutOfRange, "out of range"},
	{RespUnsupportedPrecision, "unsupported precision"},
	{RespValueInvalid, "invalid value"},
	{RespTimestampProblem, "timestamp problem"},
	{RespHazardousPower, "hazardous power levels"},
	{RespDistortion, "distortion"},
	{RespInBandPower, "in-band power"},
	{RespOutOfBandPower, "out-of-band power"},
	{RespCositeInterference, "co-site interference"},
	{RespRegionalInterference, "regional interference"},
}

// Reasons names the set reason bits, most significant first. A word with only
// user-defined bits reports "user-defined"; an empty word reports "unspecified".
func (r Response) Reasons() []string {
	out := make([]string, 0, 2)
	for _, rr := range responseReasons {
		if r&rr.bit != 0 {
			out = append(out, rr.reason)
		}
	}
	if len(out) == 0 {
		if r&RespUserMask != 0 {
			return []string{"user-defined"}
		}
		return []string{"unspecified"}
	}
	return out
}

func (r Response) User() uint16 {
	return uint16(r & RespUserMask)
}
