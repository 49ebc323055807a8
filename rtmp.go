// Package rtmp implements the RTMP chunk stream and the command layer on top of it: the
// handshake, chunk header coding, message reassembly and chunking, protocol control
// messages, AMF0/AMF3 commands and data messages, and a connection that correlates invokes
// with their answers.
//
// A client opens a connection with Dial and calls procedures with Conn.Invoke or, for
// Flex remoting destinations, Conn.InvokeRemote:
//
//	conn, err := rtmp.Dial(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	if _, err := conn.Connect(ctx, rtmp.ConnectParams(cfg)); err != nil {
//		return err
//	}
//	result, err := conn.InvokeRemote(ctx, "summonerService", "getSummonerByName", amf.String("name"))
package rtmp
