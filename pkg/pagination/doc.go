// Package pagination walks Canvas paginated collections.
//
// Canvas advertises the following page of a collection in the Link response
// header:
//
//	Link: <https://school.instructure.com/api/v1/courses/1/enrollments?page=2&per_page=100>; rel="next",
//	      <https://school.instructure.com/api/v1/courses/1/enrollments?page=1&per_page=100>; rel="first"
//
// The fetcher follows rel="next" until it disappears and returns every element
// of every page in order. The absolute next URL is stripped of the API base
// ("https://school.instructure.com/api/v1") so continuation requests go through
// the same relative-path code as the first one.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(canvasClient, canvasClient.BaseURL(), pagination.DefaultConfig())
//	enrollments, err := pagination.FetchAll[canvas.Enrollment](ctx, fetcher, "/courses/42/enrollments", params)
//
// The walk is sequential: page N+1 is only known once page N has arrived.
// Any error aborts the walk and no partial result is returned.
package pagination
