package sqlinline

const QUpsertUserByEmail = `--sql 19735d8f-dc10-4ae9-ab7c-6fb9eaefb525
insert into users (id, email, name, picture, locale, role, credits, dollar_to_credit_pct, created_at, updated_at)
values (gen_random_uuid(), lower($1::text), coalesce(nullif($2::text, ''), split_part($1::text, '@', 1)),
        coalesce($3::text, ''), coalesce(nullif($4::text, ''), 'pt'), 'user', 0, $5::int, now(), now())
on conflict (email) do update set
    name = case when nullif(excluded.name, '') is null then users.name else excluded.name end,
    picture = case when excluded.picture = '' then users.picture else excluded.picture end,
    locale = excluded.locale,
    updated_at = now()
returning id, email, name, role, credits, dollar_to_credit_pct;
`

const QSelectUserByID = `--sql ce8a6a8f-454c-4fc4-b616-88825c161cbb
select id, email, name, picture, locale, role, credits, dollar_to_credit_pct, created_at, updated_at
from users
where id = $1::uuid
limit 1;
`

const QSelectUserByEmail = `--sql 4e76b3d3-d6c3-4862-83a8-c3690d798d9d
select id, email, name, picture, locale, role, credits, dollar_to_credit_pct, created_at, updated_at
from users
where email = lower($1::text)
limit 1;
`

// QSelectUserForUpdate locks the user row for the duration of an accounting
// transaction so concurrent ledger appends serialize per user.
const QSelectUserForUpdate = `--sql 119bab88-46bf-4d39-9e06-505405a90de9
select email, name, credits, dollar_to_credit_pct
from users
where id = $1::uuid
for update;
`

const QAdjustUserCredits = `--sql 0f839dba-a9ac-4ebd-bda2-a3b4b262623e
update users
set credits = credits + $2::bigint, updated_at = now()
where id = $1::uuid
returning credits;
`

const QSetUserRate = `--sql ed58d3d8-3a42-49d3-a460-2b6ef52ee9f6
update users
set dollar_to_credit_pct = $2::int, updated_at = now()
where id = $1::uuid
returning dollar_to_credit_pct;
`
