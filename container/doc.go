/*
Package container reads and writes PBZ containers: gzip compressed streams
of protobuf messages that carry the schemas needed to decode them.

Writing:

	w, err := container.Create("events.pbz")
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.RegisterMessage(&timestamppb.Timestamp{}); err != nil {
		return err
	}
	if err := w.Write(timestamppb.Now()); err != nil {
		return err
	}

Reading:

	r, err := container.Open("events.pbz")
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		v, err := r.NextValue()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		fmt.Println(v)
	}

A Reader or Writer must only be used from one goroutine at a time.
Independent Readers on independent streams can be used concurrently.
The stream is forward only, there is no seeking.
*/
package container
