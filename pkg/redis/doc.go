// Package redis opens go-redis clients for dispatch components that share
// state across processes, such as the Redis-backed token verdict cache.
//
// Open retries the first ping with linear backoff so a service started next
// to its Redis container does not fail on a cold start. Healthcheck plugs into
// pkg/health readiness checks and Shutdown into dispatch.ShutdownHook:
//
//	client, err := redis.Open(ctx, os.Getenv("REDIS_URL"))
//	if err != nil {
//	    return err
//	}
//	checks := health.Checks{"redis": redis.Healthcheck(client)}
//	dispatch.Run(svc, settings, dispatch.ShutdownHook(redis.Shutdown(client)))
package redis
