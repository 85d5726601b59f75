package client

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Fetcher is the pluggable transport behind the proxy. It returns the HTTP
// status and body of one attempt; an error means the network layer failed
// and the attempt may be retried.
type Fetcher interface {
	Fetch(url string, body []byte, timeout time.Duration) (int, []byte, error)
}

// unixScheme selects the loopback-socket transport. The socket path is
// URL-escaped in the host position, e.g.
// http+unix://%2Fvar%2Frun%2Ftaskhub.sock.
const unixScheme = "http+unix://"

// newFetcher picks the transport for the base URL: the unix-socket fetcher
// when the scheme asks for it, the fiber agent otherwise. Selection happens
// once at construction and does not affect retry semantics.
func newFetcher(baseURL string, connectTimeout time.Duration) (Fetcher, string, error) {
	if strings.HasPrefix(baseURL, unixScheme) {
		return newUnixFetcher(baseURL, connectTimeout)
	}
	return NewAgentFetcher(), strings.TrimRight(baseURL, "/"), nil
}

// AgentFetcher sends requests through the fiber client agent.
type AgentFetcher struct {
	client *fiber.Client
}

// NewAgentFetcher creates the default HTTP fetcher.
func NewAgentFetcher() *AgentFetcher {
	return &AgentFetcher{client: fiber.AcquireClient()}
}

// Fetch performs one POST attempt.
func (f *AgentFetcher) Fetch(url string, body []byte, timeout time.Duration) (int, []byte, error) {
	req := f.client.Post(url)
	req.Timeout(timeout)
	req.Body(body)
	req.Set("Content-Type", "application/json")

	status, respBody, errs := req.Bytes()
	if len(errs) > 0 {
		return 0, nil, fmt.Errorf("fetch %s: %w", url, errs[0])
	}
	return status, respBody, nil
}

// UnixFetcher sends requests over a local unix domain socket.
type UnixFetcher struct {
	client *fasthttp.HostClient
}

func newUnixFetcher(baseURL string, connectTimeout time.Duration) (*UnixFetcher, string, error) {
	rest := strings.TrimPrefix(baseURL, unixScheme)
	host := rest
	suffix := ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		host, suffix = rest[:i], rest[i:]
	}

	socketPath, err := url.PathUnescape(host)
	if err != nil || socketPath == "" {
		return nil, "", fmt.Errorf("invalid unix socket url %q", baseURL)
	}

	f := &UnixFetcher{
		client: &fasthttp.HostClient{
			Addr: socketPath,
			Dial: func(string) (net.Conn, error) {
				return net.DialTimeout("unix", socketPath, connectTimeout)
			},
		},
	}
	return f, strings.TrimRight(suffix, "/"), nil
}

// Fetch performs one POST attempt over the socket. url is the request path.
func (f *UnixFetcher) Fetch(url string, body []byte, timeout time.Duration) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetRequestURI("http://localhost" + url)
	req.SetBody(body)

	if err := f.client.DoTimeout(req, resp, timeout); err != nil {
		return 0, nil, fmt.Errorf("fetch %s over unix socket: %w", url, err)
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}
