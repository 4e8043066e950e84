// Package smartconnect is a slim Angel One SmartAPI client covering what the
// historical loaders need: password + TOTP login, token renewal and the
// getCandleData endpoint.
//
// Usage example:
//
//	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: "your_api_key"})
//	if _, err := sc.LoginWithTOTP(ctx, "CLIENTID", "PIN", "TOTPSECRET"); err != nil {
//		log.Fatal(err)
//	}
//	bars, err := sc.GetCandles(ctx, smartconnect.CandleParams{
//		Exchange: "NSE", SymbolToken: "3045", Interval: smartconnect.OneDay,
//		From: from, To: to,
//	})
package smartconnect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// ErrLoginFailed is returned when the login endpoint answers status=false.
var ErrLoginFailed = errors.New("smartconnect: login failed")

// APIError is an error payload returned by SmartAPI.
type APIError struct {
	StatusCode int
	ErrorType  string
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("smartconnect: %s: %s (http %d)", e.ErrorType, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("smartconnect: %s %s (http %d)", e.ErrorCode, e.Message, e.StatusCode)
}

// Config configures a SmartConnect client. Only APIKey is required.
type Config struct {
	APIKey       string
	AccessToken  string
	RefreshToken string

	RootURL string        // default: https://apiconnect.angelone.in
	Timeout time.Duration // default: 7s
	Debug   bool          // log requests and responses

	// Identity headers SmartAPI expects on every call. Unset fields are
	// resolved from the host.
	Identity Identity
}

// Identity is the caller description sent as X-* headers.
type Identity struct {
	UserType string // default: USER
	SourceID string // default: WEB
	LocalIP  string
	PublicIP string // default: LocalIP
	MAC      string
}

func (id Identity) resolve() Identity {
	if id.UserType == "" {
		id.UserType = "USER"
	}
	if id.SourceID == "" {
		id.SourceID = "WEB"
	}
	if id.LocalIP == "" {
		id.LocalIP = hostIPv4()
	}
	if id.PublicIP == "" {
		id.PublicIP = id.LocalIP
	}
	if id.MAC == "" {
		id.MAC = hostMAC()
	}
	return id
}

// hostIPv4 returns the first non-loopback IPv4 address, or 127.0.0.1.
func hostIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		log.Printf("[smartconnect] interface addrs: %v", err)
		return "127.0.0.1"
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return "127.0.0.1"
}

func hostMAC() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:00:00:00:00:00"
}

// SmartConnect is a SmartAPI session. It is not safe for concurrent login
// and token renewal.
type SmartConnect struct {
	apiKey       string
	accessToken  string
	refreshToken string
	feedToken    string
	userID       string

	rootURL    string
	debug      bool
	httpClient *http.Client
	id         Identity

	// SessionExpiryHook, if set, is called on a 403 TokenException.
	SessionExpiryHook func()
}

const defaultRoot = "https://apiconnect.angelone.in"

type route string

const (
	routeLogin      route = "/rest/auth/angelbroking/user/v1/loginByPassword"
	routeLogout     route = "/rest/secure/angelbroking/user/v1/logout"
	routeToken      route = "/rest/auth/angelbroking/jwt/v1/generateTokens"
	routeProfile    route = "/rest/secure/angelbroking/user/v1/getProfile"
	routeCandleData route = "/rest/secure/angelbroking/historical/v1/getCandleData"
)

// NewSmartConnect initializes the client. No network calls are made.
func NewSmartConnect(cfg Config) *SmartConnect {
	root := cfg.RootURL
	if root == "" {
		root = defaultRoot
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 7 * time.Second
	}
	return &SmartConnect{
		apiKey:       cfg.APIKey,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
		rootURL:      strings.TrimRight(root, "/"),
		debug:        cfg.Debug,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12}},
		},
		id: cfg.Identity.resolve(),
	}
}

func (sc *SmartConnect) headers() http.Header {
	h := http.Header{
		"Content-Type":     {"application/json"},
		"Accept":           {"application/json"},
		"X-Privatekey":     {sc.apiKey},
		"X-Usertype":       {sc.id.UserType},
		"X-Sourceid":       {sc.id.SourceID},
		"X-Clientlocalip":  {sc.id.LocalIP},
		"X-Clientpublicip": {sc.id.PublicIP},
		"X-Macaddress":     {sc.id.MAC},
	}
	if sc.accessToken != "" {
		h.Set("Authorization", "Bearer "+sc.accessToken)
	}
	return h
}

// response is the common SmartAPI envelope.
type response struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

func (sc *SmartConnect) do(ctx context.Context, method string, rt route, params map[string]any) (*response, error) {
	reqURL := sc.rootURL + string(rt)

	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprint(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = sc.headers()

	if sc.debug {
		log.Printf("[smartconnect] request: %s %s", method, reqURL)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("smartconnect: %s %s: %w", method, rt, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if sc.debug {
		log.Printf("[smartconnect] response: code=%d body=%s", resp.StatusCode, raw)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("smartconnect: couldn't parse JSON response (http %d): %w", resp.StatusCode, err)
	}
	if out.ErrorType != "" {
		if sc.SessionExpiryHook != nil && resp.StatusCode == http.StatusForbidden && out.ErrorType == "TokenException" {
			sc.SessionExpiryHook()
		}
		return &out, &APIError{StatusCode: resp.StatusCode, ErrorType: out.ErrorType, Message: out.Message}
	}
	if !out.Status {
		return &out, &APIError{StatusCode: resp.StatusCode, ErrorCode: out.ErrorCode, Message: out.Message}
	}
	return &out, nil
}

func (sc *SmartConnect) SetAccessToken(t string) { sc.accessToken = t }
func (sc *SmartConnect) GetFeedToken() string    { return sc.feedToken }
func (sc *SmartConnect) GetUserID() string       { return sc.userID }

// Session is the token set returned by a successful login.
type Session struct {
	ClientCode   string `json:"clientcode"`
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// GenerateSession logs in with a one-time password and stores the tokens.
func (sc *SmartConnect) GenerateSession(ctx context.Context, clientCode, password, otp string) (*Session, error) {
	params := map[string]any{"clientcode": clientCode, "password": password, "totp": otp}
	res, err := sc.do(ctx, http.MethodPost, routeLogin, params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.ErrorType == "" {
			return nil, fmt.Errorf("%w: %s", ErrLoginFailed, apiErr.Message)
		}
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(res.Data, &s); err != nil {
		return nil, fmt.Errorf("smartconnect: unexpected login response format: %w", err)
	}
	s.ClientCode = clientCode
	sc.accessToken = s.JWTToken
	sc.refreshToken = s.RefreshToken
	sc.feedToken = s.FeedToken
	sc.userID = clientCode
	return &s, nil
}

// LoginWithTOTP derives the current code from a base32 TOTP secret and
// calls GenerateSession.
func (sc *SmartConnect) LoginWithTOTP(ctx context.Context, clientCode, password, secret string) (*Session, error) {
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return nil, fmt.Errorf("smartconnect: totp: %w", err)
	}
	return sc.GenerateSession(ctx, clientCode, password, code)
}

// RenewAccessToken exchanges the refresh token for a new JWT.
func (sc *SmartConnect) RenewAccessToken(ctx context.Context) error {
	res, err := sc.do(ctx, http.MethodPost, routeToken, map[string]any{"refreshToken": sc.refreshToken})
	if err != nil {
		return err
	}
	var s Session
	if err := json.Unmarshal(res.Data, &s); err != nil {
		return fmt.Errorf("smartconnect: unexpected token response format: %w", err)
	}
	if s.JWTToken != "" {
		sc.accessToken = s.JWTToken
	}
	if s.RefreshToken != "" {
		sc.refreshToken = s.RefreshToken
	}
	if s.FeedToken != "" {
		sc.feedToken = s.FeedToken
	}
	return nil
}

// Profile is the subset of getProfile the loaders log.
type Profile struct {
	ClientCode string   `json:"clientcode"`
	Name       string   `json:"name"`
	Exchanges  []string `json:"exchanges"`
}

// Profile fetches the logged-in user's profile.
func (sc *SmartConnect) Profile(ctx context.Context) (*Profile, error) {
	res, err := sc.do(ctx, http.MethodGet, routeProfile, nil)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(res.Data, &p); err != nil {
		return nil, fmt.Errorf("smartconnect: unexpected profile response format: %w", err)
	}
	return &p, nil
}

// TerminateSession logs the client out.
func (sc *SmartConnect) TerminateSession(ctx context.Context) error {
	_, err := sc.do(ctx, http.MethodPost, routeLogout, map[string]any{"clientcode": sc.userID})
	return err
}
