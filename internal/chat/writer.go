package chat

import "bufio"

// StartOutboundWriter drains c.Out onto the connection until the client is
// closed. Best-effort: a write failure closes the client, which also
// releases a reader blocked on the same connection.
func StartOutboundWriter(c *Client) {
	go func() {
		w := bufio.NewWriter(c.Conn)
		for {
			select {
			case line := <-c.Out:
				if _, err := w.WriteString(line + "\n"); err != nil {
					c.Close()
					return
				}
				if err := w.Flush(); err != nil {
					c.Close()
					return
				}
			case <-c.done:
				return
			}
		}
	}()
}
