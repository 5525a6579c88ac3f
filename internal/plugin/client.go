package plugin

import (
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
)

type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

var reqCounter uint64

func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Call(method string, params any, out any) error {
	id := strconv.FormatUint(atomic.AddUint64(&reqCounter, 1), 10)
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = b
	}
	if err := c.enc.Encode(Request{ID: id, Method: method, Params: raw}); err != nil {
		return err
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.New(resp.Error.Message)
	}
	if out != nil {
		return json.Unmarshal(resp.Result, out)
	}
	return nil
}

func (c *Client) Describe() ([]Descriptor, error) {
	var result []Descriptor
	return result, c.Call(MethodDescribe, nil, &result)
}

func (c *Client) Invoke(tool string, params map[string]any) ([]Message, error) {
	var result InvokeResult
	if err := c.Call(MethodInvoke, InvokeParams{Tool: tool, Parameters: params}, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

func (c *Client) Stop() error {
	return c.Call(MethodStop, nil, nil)
}
