package forward

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
)

// DefaultTextContentType はContent-Typeがないレスポンスに使うContent-Type。
const DefaultTextContentType = "text/plain; charset=utf-8"

// BodyKind はレスポンスボディの扱い方を表す。
type BodyKind int

const (
	// BodyText はテキストとしてそのまま返すボディ。
	BodyText BodyKind = iota
	// BodyJSON はJSONとして解析し再シリアライズしたボディ。
	BodyJSON
	// BodyBinary はデコードせずにバイト列のまま返すボディ。
	BodyBinary
)

// String はBodyKindの名前を返す。
func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyBinary:
		return "binary"
	default:
		return "text"
	}
}

// Response はバックエンドサービスのレスポンスをクライアント向けに変換したもの。
type Response struct {
	// StatusCode はバックエンドが返したステータスコード。
	StatusCode int
	// Header はクライアントに返すヘッダー（hop-by-hopヘッダーとContent-Lengthを除く）。
	Header http.Header
	// ContentType はクライアントに返すContent-Type。
	ContentType string
	// Kind はボディの扱い方。
	Kind BodyKind
	// Body はクライアントに返すボディ。
	Body []byte
}

// binaryTypes はテキストとしてデコードしないメディアタイプ。
var binaryTypes = map[string]struct{}{
	"application/pdf":          {},
	"application/octet-stream": {},
	"application/zip":          {},
}

// binaryFamilies はテキストとしてデコードしないメディアタイプのファミリー。
var binaryFamilies = []string{"image/", "video/", "audio/"}

// ClassifyContentType はContent-Typeからボディの扱い方を判定する。
func ClassifyContentType(contentType string) BodyKind {
	if contentType == "" {
		return BodyText
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		return BodyJSON
	}
	if _, ok := binaryTypes[mediaType]; ok {
		return BodyBinary
	}
	for _, family := range binaryFamilies {
		if strings.HasPrefix(mediaType, family) {
			return BodyBinary
		}
	}
	return BodyText
}

// translateResponse はContent-Typeに応じてレスポンスボディを変換する。
// JSONの解析に失敗した場合は生のボディを返し、ペイロードを失わない。
func translateResponse(resp *http.Response, body []byte) *Response {
	contentType := resp.Header.Get("Content-Type")
	out := &Response{
		StatusCode:  resp.StatusCode,
		Header:      responseHeader(resp.Header),
		ContentType: contentType,
		Kind:        ClassifyContentType(contentType),
		Body:        body,
	}

	switch out.Kind {
	case BodyJSON:
		if reencoded, ok := reencodeJSON(body); ok {
			out.Body = reencoded
		} else {
			out.Kind = BodyText
		}
	case BodyText:
		if out.ContentType == "" {
			out.ContentType = DefaultTextContentType
		}
	case BodyBinary:
	}
	return out
}

// reencodeJSON はJSONを解析して再シリアライズする。数値の精度は保持する。
func reencodeJSON(body []byte) ([]byte, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		// 複数の値が連結されている
		return nil, false
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, false
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), true
}

// responseHeader はクライアントに返すヘッダーを複製する。
// hop-by-hopヘッダーと、送信側で再計算されるヘッダーは除去する。
func responseHeader(in http.Header) http.Header {
	h := in.Clone()
	if h == nil {
		h = make(http.Header)
	}
	removeHopHeaders(h)
	h.Del("Content-Length")
	h.Del("Content-Type")
	return h
}
