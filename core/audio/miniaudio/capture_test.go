package miniaudio

import "testing"

func TestFeedDeliversToCurrentOwner(t *testing.T) {
	feed := &captureFeed{}

	var got []byte
	feed.take(func(chunk []byte) { got = chunk })

	feed.deliver([]byte{1, 2})
	if len(got) != 2 {
		t.Fatalf("expected the owner to receive the chunk, got %v", got)
	}
}

func TestFeedTakeoverSurvivesStaleRelease(t *testing.T) {
	feed := &captureFeed{}

	var first, second int
	firstGeneration := feed.take(func([]byte) { first++ })
	feed.take(func([]byte) { second++ })

	// The outgoing stream's teardown must not disturb the new owner.
	if feed.release(firstGeneration) {
		t.Fatalf("a superseded stream must not own the feed")
	}

	feed.deliver([]byte{0})
	if first != 0 || second != 1 {
		t.Fatalf("expected only the new owner to hear audio, got first=%d second=%d", first, second)
	}
}

func TestFeedReleaseByOwnerSilencesIt(t *testing.T) {
	feed := &captureFeed{}

	var calls int
	generation := feed.take(func([]byte) { calls++ })

	if !feed.release(generation) {
		t.Fatalf("the current owner must be able to release")
	}

	feed.deliver([]byte{0})
	if calls != 0 {
		t.Fatalf("a released feed must stay silent, got %d calls", calls)
	}
}

func TestFeedDeliverWithoutOwnerIsSafe(t *testing.T) {
	feed := &captureFeed{}

	feed.deliver([]byte{0})

	feed.take(nil)
	feed.deliver([]byte{0})
}

func TestStopWithoutOwnershipLeavesDeviceAlone(t *testing.T) {
	client := &captureClient{}

	generation := client.feed.take(func([]byte) {})
	client.feed.take(func([]byte) {})

	// The stale stop must not reach the device path at all; with no device
	// initialized, stopDevice would be a no-op anyway, but ownership is what
	// keeps a live device running for the new owner.
	if err := client.stop(generation); err != nil {
		t.Fatalf("stale stop must be a no-op, got %v", err)
	}

	var heard int
	client.feed.take(func([]byte) { heard++ })
	client.feed.deliver([]byte{0})
	if heard != 1 {
		t.Fatalf("expected the feed to keep working after a stale stop")
	}
}
