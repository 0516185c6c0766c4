// EtcdTable is an etcd-backed routing-table implementation: it stores
// {kademlia_id -> Contact} for peer rendezvous/public-key lookup using a
// TTL-leased key per contact and prefix scans for address-based lookup.
package routingtable

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdPrefix = "/p2prpc/contacts/"

// EtcdTable implements Table by reading contact records from etcd. Puts
// are exposed too, but the core RPC path never calls them; only an
// external bootstrap/crawl process populates the table.
type EtcdTable struct {
	client *clientv3.Client
}

// NewEtcdTable connects to the given etcd endpoints.
func NewEtcdTable(endpoints []string) (*EtcdTable, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdTable{client: c}, nil
}

// Put stores a contact under a TTL lease, renewed via KeepAlive so the
// record survives as long as the caller keeps refreshing it.
func (t *EtcdTable) Put(ctx context.Context, c Contact, ttlSeconds int64) error {
	lease, err := t.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}

	val, err := json.Marshal(c)
	if err != nil {
		return err
	}

	if _, err := t.client.Put(ctx, etcdPrefix+c.KademliaID, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := t.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Remove deletes a contact record from etcd.
func (t *EtcdTable) Remove(ctx context.Context, kademliaID string) error {
	_, err := t.client.Delete(ctx, etcdPrefix+kademliaID)
	return err
}

// Lookup fetches a single contact by kademlia id.
func (t *EtcdTable) Lookup(kademliaID string) (Contact, bool) {
	resp, err := t.client.Get(context.Background(), etcdPrefix+kademliaID)
	if err != nil || len(resp.Kvs) == 0 {
		return Contact{}, false
	}
	var c Contact
	if err := json.Unmarshal(resp.Kvs[0].Value, &c); err != nil {
		return Contact{}, false
	}
	return c, true
}

// LookupByAddr scans every stored contact for a matching (host_ip,
// host_port). etcd has no secondary index, so this is a prefix scan and
// filter; fine for a reference implementation's contact-table sizes, not
// meant for million-peer scale.
func (t *EtcdTable) LookupByAddr(hostIP string, hostPort uint16) (Contact, bool) {
	resp, err := t.client.Get(context.Background(), etcdPrefix, clientv3.WithPrefix())
	if err != nil {
		return Contact{}, false
	}
	want := addrKey(hostIP, hostPort)
	for _, kv := range resp.Kvs {
		var c Contact
		if err := json.Unmarshal(kv.Value, &c); err != nil {
			continue
		}
		if addrKey(c.HostIP, c.HostPort) == want {
			return c, true
		}
	}
	return Contact{}, false
}

// Watch emits the full contact set whenever anything under the contacts
// prefix changes.
func (t *EtcdTable) Watch(ctx context.Context) <-chan []Contact {
	out := make(chan []Contact, 1)
	go func() {
		watchChan := t.client.Watch(ctx, etcdPrefix, clientv3.WithPrefix())
		for range watchChan {
			resp, err := t.client.Get(ctx, etcdPrefix, clientv3.WithPrefix())
			if err != nil {
				continue
			}
			contacts := make([]Contact, 0, len(resp.Kvs))
			for _, kv := range resp.Kvs {
				var c Contact
				if err := json.Unmarshal(kv.Value, &c); err == nil {
					contacts = append(contacts, c)
				}
			}
			select {
			case out <- contacts:
			default:
			}
		}
		close(out)
	}()
	return out
}
