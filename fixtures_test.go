// SPDX-License-Identifier: MPL-2.0

package sipster

import (
	"fmt"
	"strings"
	"testing"

	"github.com/emiago/sipgo/sip"
)

func testCreateMessage(t testing.TB, rawMsg []string) sip.Message {
	t.Helper()
	msg, err := sip.ParseMessage([]byte(strings.Join(rawMsg, "\r\n")))
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func testRequest(t testing.TB, method string, callID string, cseq int) *sip.Request {
	t.Helper()
	return testCreateMessage(t, []string{
		method + " sip:bob@127.0.0.1:5060 SIP/2.0",
		"Via: SIP/2.0/UDP 127.0.0.1:5066;branch=" + sip.GenerateBranch(),
		"From: \"Alice\" <sip:alice@127.0.0.1:5066>;tag=8deef0",
		"To: \"Bob\" <sip:bob@127.0.0.1:5060>",
		"Call-ID: " + callID,
		fmt.Sprintf("CSeq: %d %s", cseq, method),
		"Contact: <sip:alice@127.0.0.1:5066>",
		"Content-Length: 0",
		"",
		"",
	}).(*sip.Request)
}

func testResponse(t testing.TB, status int, reason string, callID string, cseq int, cseqMethod string) *sip.Response {
	t.Helper()
	return testCreateMessage(t, []string{
		fmt.Sprintf("SIP/2.0 %d %s", status, reason),
		"Via: SIP/2.0/UDP 127.0.0.1:5066;branch=" + sip.GenerateBranch(),
		"From: \"Alice\" <sip:alice@127.0.0.1:5066>;tag=8deef0",
		"To: \"Bob\" <sip:bob@127.0.0.1:5060>;tag=b0b1",
		"Call-ID: " + callID,
		fmt.Sprintf("CSeq: %d %s", cseq, cseqMethod),
		"Contact: <sip:bob@127.0.0.1:5060>",
		"Content-Length: 0",
		"",
		"",
	}).(*sip.Response)
}
